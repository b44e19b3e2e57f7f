//go:build darwin || freebsd || netbsd

package fs

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

var errBirthTimeUnsupported = errors.New("creation time not supported by filesystem")

// BirthTime returns the creation time of path from lstat's birth
// timestamp, without following symlinks.
func (m *OSFilesystem) BirthTime(path string) (time.Time, error) {
	var st unix.Stat_t
	for {
		err := unix.Lstat(path, &st)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		break
	}
	// Filesystems without birth times report -1 or 0.
	if st.Birthtimespec.Sec <= 0 && st.Birthtimespec.Nsec <= 0 {
		return time.Time{}, errBirthTimeUnsupported
	}
	return time.Unix(int64(st.Birthtimespec.Sec), int64(st.Birthtimespec.Nsec)), nil
}
