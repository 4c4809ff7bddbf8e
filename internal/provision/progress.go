package provision

import "fmt"

// FormatBytes renders a byte count in human-readable form.
func FormatBytes(n int64) string {
	v := float64(n)
	for _, unit := range []string{"B", "KB", "MB"} {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f GB", v)
}

// FormatSpeed renders a throughput value in human-readable form.
func FormatSpeed(bps float64) string {
	return FormatBytes(int64(bps)) + "/s"
}

// FormatETA renders an estimated-seconds-remaining value; negative means
// still calculating.
func FormatETA(seconds int) string {
	if seconds < 0 {
		return "calculating..."
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
