//go:build unix

package fs

import (
	"fmt"
	"io/fs"
	"syscall"

	"fsindex/internal/indexer"
)

// ExtractStatData extracts Unix-specific stat data from a FileInfo.
func (m *OSFilesystem) ExtractStatData(info fs.FileInfo) (*indexer.StatData, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	return &indexer.StatData{
		UID:   stat.Uid,
		GID:   stat.Gid,
		Mode:  uint32(stat.Mode),
		Inode: uint64(stat.Ino),
		Nlink: uint64(stat.Nlink),
	}, nil
}
