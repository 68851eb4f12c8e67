package ambient

import (
	"strconv"

	"golang.org/x/exp/constraints"
)

// binaryUnits is the binary (KiB/MiB/...) ladder the copy engine's progress
// printouts use.
var binaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// ByteSizeToString renders size using binary (1024-based) units.
func ByteSizeToString[T constraints.Integer](size T) string {
	unit := 0
	floatSize := float64(size)
	for floatSize/1024 >= 1 && unit < len(binaryUnits)-1 {
		unit++
		floatSize /= 1024
	}
	return strconv.FormatFloat(floatSize, 'f', 2, 64) + " " + binaryUnits[unit]
}

// ThroughputToString renders a bytes-per-second rate.
func ThroughputToString(bytesPerSecond float64) string {
	return ByteSizeToString(int64(bytesPerSecond)) + "/s"
}
