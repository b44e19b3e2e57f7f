//go:build unix && !linux && !darwin && !freebsd && !netbsd

package fs

import (
	"errors"
	"time"
)

// BirthTime is not implemented on this platform.
func (m *OSFilesystem) BirthTime(path string) (time.Time, error) {
	return time.Time{}, errors.New("creation time not supported on this platform")
}
