//go:build linux

package fs

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

var errBirthTimeUnsupported = errors.New("creation time not supported by filesystem")

// BirthTime returns the creation time of path using statx, without
// following symlinks.
func (m *OSFilesystem) BirthTime(path string) (time.Time, error) {
	var stx unix.Statx_t
	for {
		err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		break
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, errBirthTimeUnsupported
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
}
