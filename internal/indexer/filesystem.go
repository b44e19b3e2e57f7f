package indexer

import (
	"io"
	"io/fs"
	"time"
)

// DirEntry is one entry yielded by a DirCursor.
type DirEntry interface {
	// Path returns the absolute path of the entry.
	Path() string

	// Type returns the type bits of the entry without following symlinks.
	Type() (fs.FileMode, error)

	// Info returns the entry's metadata without following symlinks.
	Info() (fs.FileInfo, error)
}

// DirCursor is a resumable, pull-based enumerator over one directory.
// Next returns io.EOF once the directory is exhausted. Any other error
// refers to a single failed entry; the caller may keep pulling.
type DirCursor interface {
	Next() (DirEntry, error)
	Close() error
}

// StatData holds the POSIX stat fields that fs.FileInfo does not expose.
type StatData struct {
	UID   uint32
	GID   uint32
	Mode  uint32 // Raw st_mode, including the file type bits
	Inode uint64
	Nlink uint64
}

// Filesystem is the indexer's only access to the operating system.
// It exists so traversal can be tested against injected faults.
type Filesystem interface {
	// OpenDir opens a cursor over the entries of the directory at path.
	OpenDir(path string) (DirCursor, error)

	// Entry returns a DirEntry for a single path, as if it had been
	// yielded by a cursor over its parent.
	Entry(path string) (DirEntry, error)

	// Open opens a regular file for reading.
	Open(path string) (io.ReadCloser, error)

	// Readlink returns the target text of a symlink.
	Readlink(path string) (string, error)

	// ExtractStatData extracts platform stat data from a FileInfo.
	ExtractStatData(info fs.FileInfo) (*StatData, error)

	// BirthTime returns the creation time of the entry at path.
	// Filesystems that do not record it return an error.
	BirthTime(path string) (time.Time, error)
}
