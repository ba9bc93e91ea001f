// Package fileutil holds the streaming file primitives used by the
// organizer: hashed copies through a fixed buffer, free-space probes and
// directory syncs.
package fileutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"shelver/internal/fingerprint"
)

// ErrShortCopy indicates fewer bytes reached the destination than the source held.
var ErrShortCopy = errors.New("copy size mismatch")

// CopyHashed streams src into a newly created dst through a fixed-size
// buffer, hashing the bytes as they pass. dst must not exist. The data is
// synced to disk before returning. On failure dst is removed.
func CopyHashed(ctx context.Context, src, dst string) (fingerprint.Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return fingerprint.Digest{}, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fingerprint.Digest{}, fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fingerprint.Digest{}, err
	}

	digest, err := copyHashed(ctx, out, in)
	if err == nil && digest.Size != info.Size() {
		err = fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrShortCopy, info.Size(), digest.Size)
	}
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fingerprint.Digest{}, err
	}
	return digest, nil
}

func copyHashed(ctx context.Context, w io.Writer, r io.Reader) (fingerprint.Digest, error) {
	hasher := sha256.New()
	buf := make([]byte, fingerprint.BufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return fingerprint.Digest{}, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fingerprint.Digest{}, err
			}
			hasher.Write(buf[:n])
			written += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fingerprint.Digest{}, readErr
		}
	}
	return fingerprint.Digest{Hex: hex.EncodeToString(hasher.Sum(nil)), Size: written}, nil
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// SyncDir flushes directory metadata so a completed rename survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}

// Exists reports whether path exists. Errors other than not-exist are returned.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// renameChecked is the fallback for filesystems without an atomic
// no-replace rename. A racing writer can still slip in between the check and
// the rename.
func renameChecked(src, dst string) error {
	exists, err := Exists(dst)
	if err != nil {
		return err
	}
	if exists {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
	}
	return os.Rename(src, dst)
}
