package luksipc

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	backupMaxBytes  = 128 * 1024 * 1024
	backupBlockSize = 128 * 1024
)

// BackupHeader copies the first min(128 MiB, readDevSize) bytes of the
// raw device (not the possibly-aliased read device) into backupFile, in
// fixed 128 KiB blocks, fsyncing at the end. This is the offline recovery
// artifact for the plaintext layout's early sectors, taken before any
// destructive action touches the disk.
func BackupHeader(rawDevice, backupFile string, readDevSize uint64) error {
	toCopy := readDevSize
	if toCopy > backupMaxBytes {
		toCopy = backupMaxBytes
	}

	src, err := os.Open(rawDevice)
	if err != nil {
		return errors.Wrapf(err, "opening %s for header backup", rawDevice)
	}
	defer src.Close()

	dst, err := os.OpenFile(backupFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating backup file %s", backupFile)
	}
	defer dst.Close()

	buf := make([]byte, backupBlockSize)
	var copied uint64
	for copied < toCopy {
		n := uint64(len(buf))
		if remaining := toCopy - copied; remaining < n {
			n = remaining
		}
		read, err := io.ReadFull(src, buf[:n])
		if err != nil && err != io.ErrUnexpectedEOF {
			return errors.Wrapf(err, "reading %s for header backup", rawDevice)
		}
		if _, err := dst.Write(buf[:read]); err != nil {
			return errors.Wrapf(err, "writing backup file %s", backupFile)
		}
		copied += uint64(read)
		if read == 0 {
			break
		}
	}

	if err := unix.Fdatasync(int(dst.Fd())); err != nil {
		return errors.Wrapf(err, "fsyncing backup file %s", backupFile)
	}
	return nil
}
