package snapshot

import "fmt"

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with 1024-based units and one decimal place,
// e.g. 104857600 -> "100.0 MB".
func FormatBytes(n uint64) string {
	return FormatBytesFloat(float64(n))
}

// FormatBytesFloat is FormatBytes for averaged values.
func FormatBytesFloat(v float64) string {
	if v < 0 {
		v = 0
	}
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}
