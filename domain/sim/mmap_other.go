//go:build !unix

package sim

import "errors"

// OpenFile is only available on unix hosts.
func OpenFile(string) (Segment, error) {
	return nil, errors.New("shared memory simulator link requires a unix host")
}
