// Package fingerprint computes the content identifier used as the primary key
// of every tracked file.
//
// Digests are SHA-256 over the raw bytes, streamed through a fixed-size
// buffer so memory use does not grow with file size. The path and name never
// contribute to the digest.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"shelver/internal/services"
)

// BufferSize is the fixed read size used while hashing.
const BufferSize = 1 << 20

// Digest is the content identifier and byte count of a stream.
type Digest struct {
	Hex  string
	Size int64
}

// Short returns the first 12 hex characters, for log lines and tables.
func (d Digest) Short() string {
	return Short(d.Hex)
}

// Short truncates a hex fingerprint for display.
func Short(hexDigest string) string {
	if len(hexDigest) <= 12 {
		return hexDigest
	}
	return hexDigest[:12]
}

// File hashes the file at path. Open and read failures are tagged as
// permission or transient I/O errors so callers can decide on retry.
func File(ctx context.Context, path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, services.ClassifyIO("fingerprint", "open", err)
	}
	defer file.Close()
	return Reader(ctx, file)
}

// Reader hashes r until EOF, checking ctx between chunks.
func Reader(ctx context.Context, r io.Reader) (Digest, error) {
	hasher := sha256.New()
	buf := make([]byte, BufferSize)
	var size int64
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = hasher.Write(buf[:n])
			size += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, services.ClassifyIO("fingerprint", "read", err)
		}
	}
	return Digest{Hex: hex.EncodeToString(hasher.Sum(nil)), Size: size}, nil
}
