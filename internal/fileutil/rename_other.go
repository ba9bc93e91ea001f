//go:build !linux

package fileutil

import "os"

// Rename moves src to dst. Unless replace is set the rename fails with an
// error matching os.ErrExist when dst already exists.
func Rename(src, dst string, replace bool) error {
	if replace {
		return os.Rename(src, dst)
	}
	return renameChecked(src, dst)
}
