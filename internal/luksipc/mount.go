package luksipc

import (
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/disk"
)

// IsBlockDeviceMounted consults the running system's mount table, using
// gopsutil/v3/disk for the partition list and falling back to a
// major/minor device-number comparison via stat for symlink and
// device-mapper-alias cases a plain path string compare would miss.
//
// On stat failure, this conservatively reports "mounted" — refusing to
// touch a device we can't even stat is always the safer call.
func IsBlockDeviceMounted(blkDevice string) bool {
	var devStat syscall.Stat_t
	if err := syscall.Stat(blkDevice, &devStat); err != nil {
		return true
	}

	partitions, err := disk.Partitions(true)
	if err != nil {
		// Can't consult the mount table at all; same conservative stance.
		return true
	}

	for _, p := range partitions {
		if p.Device == blkDevice {
			return true
		}
		if p.Device == "" || p.Device == "none" {
			continue
		}
		var entryStat syscall.Stat_t
		if err := syscall.Stat(p.Device, &entryStat); err != nil {
			continue
		}
		if entryStat.Rdev == devStat.Rdev {
			return true
		}
	}
	return false
}

// fileExists is a small helper used by the precondition checks to test
// whether key/resume/backup files already exist.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
