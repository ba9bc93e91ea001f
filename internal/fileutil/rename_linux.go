package fileutil

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Rename moves src to dst. Unless replace is set the rename fails with an
// error matching os.ErrExist when dst already exists, checked atomically by
// the kernel where the filesystem supports it.
func Rename(src, dst string, replace bool) error {
	if replace {
		return os.Rename(src, dst)
	}
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS):
		return renameChecked(src, dst)
	default:
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: err}
	}
}
