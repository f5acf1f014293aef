//go:build linux

package debug

import "golang.org/x/sys/unix"

// peakRSS returns the peak resident set size in bytes.
func peakRSS() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	return uint64(ru.Maxrss) * 1024, nil // kilobytes on linux
}
