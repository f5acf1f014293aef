//go:build !linux

package debug

import "errors"

func peakRSS() (uint64, error) { return 0, errors.New("rss not supported on this platform") }
