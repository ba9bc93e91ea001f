package organizer

import (
	"os"
	"syscall"
)

// ForceCrossDevice makes the first rename attempt fail with EXDEV so the
// copy path runs on a single test filesystem.
func ForceCrossDevice(o *Organizer) {
	o.rename = func(src, dst string, _ bool) error {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
	}
}

// ForceCrossDeviceRace behaves like ForceCrossDevice and runs occupy with the
// target path first, standing in for a file that lands there mid-move.
func ForceCrossDeviceRace(o *Organizer, occupy func(target string)) {
	o.rename = func(src, dst string, _ bool) error {
		occupy(dst)
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
	}
}
