package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// ProbeBlockSize asks the kernel for the logical sector size of an open
// block device via BLKSSZGET, the same ioctl the teacher's own
// getSectorSizes helper used for physical/logical sector discovery. It
// returns an error for anything that isn't a block device (a plain disk
// image, for instance), which callers treat as "no hint available" rather
// than a fatal condition.
func ProbeBlockSize(f *os.File) (int, error) {
	return unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
}
