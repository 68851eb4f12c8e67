package luksipc

import (
	"crypto/rand"
	"encoding/hex"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DiskSizeOfFd probes a block device's size via the BLKGETSIZE64 ioctl,
// the same call upstream luksipc's getDiskSizeOfFd wraps.
func DiskSizeOfFd(f *os.File) (uint64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, errors.Wrapf(err, "BLKGETSIZE64 on %s", f.Name())
	}
	return uint64(size), nil
}

// DiskSizeOfPath opens path read-only and probes its size.
func DiskSizeOfPath(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return DiskSizeOfFd(f)
}

// RandomHexTag returns nHexChars/2 bytes of crypto/rand entropy rendered
// as lowercase hex, used for the device-mapper write handle's random
// suffix (upstream generates an 8-hex-char tag the same way, from
// /dev/urandom instead of the runtime's CSPRNG).
func RandomHexTag(nHexChars int) string {
	buf := make([]byte, (nHexChars+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which upstream treats as a fatal PRNG
		// initialization failure rather than something to recover from.
		panic(errors.Wrap(err, "reading entropy for random hex tag"))
	}
	return hex.EncodeToString(buf)[:nHexChars]
}

// readEntropy fills buf with CSPRNG output, used for key-file generation.
func readEntropy(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// SafeStringCopy truncates src to fit within maxLen bytes (leaving room
// for no terminator since Go strings aren't NUL-terminated), reporting
// whether truncation occurred. This exists to mirror the fixed-width
// checklist formatting upstream's safestrcpy enabled in its display
// code, not for any buffer-safety reason Go itself needs.
func SafeStringCopy(src string, maxLen int) (string, bool) {
	if len(src) <= maxLen {
		return src, false
	}
	return src[:maxLen], true
}
