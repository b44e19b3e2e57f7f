package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"fsindex/internal/indexer"
)

// readDirBatchSize is the number of entries fetched per directory read.
const readDirBatchSize = 128

// OSFilesystem is the real filesystem implementation of indexer.Filesystem.
type OSFilesystem struct{}

// NewOSFilesystem creates a filesystem that operates on the real filesystem.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

// OpenDir opens a cursor over the directory at path. Opening anything
// other than a directory fails with ENOTDIR.
func (m *OSFilesystem) OpenDir(path string) (indexer.DirCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "opendir", Path: path, Err: syscall.ENOTDIR}
	}
	return &dirCursor{dir: path, f: f}, nil
}

// Entry returns a DirEntry for a single path using lstat.
func (m *OSFilesystem) Entry(path string) (indexer.DirEntry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return &dirEntry{path: path, d: fs.FileInfoToDirEntry(info)}, nil
}

// Open opens a file for reading.
func (m *OSFilesystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Readlink returns the literal target of the symlink at path.
func (m *OSFilesystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// dirCursor wraps os.File.ReadDir behind the pull interface, reading the
// directory in batches so that a large directory never sits in memory whole.
type dirCursor struct {
	dir     string
	f       *os.File
	pending []fs.DirEntry
	err     error // Sticky; io.EOF once the directory is exhausted
}

// Next returns the next entry. A read error is reported once, after the
// entries that were read before it; the cursor is exhausted afterwards.
func (c *dirCursor) Next() (indexer.DirEntry, error) {
	for len(c.pending) == 0 {
		if c.err != nil {
			err := c.err
			c.err = io.EOF
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading directory %s: %w", c.dir, err)
		}

		entries, err := c.f.ReadDir(readDirBatchSize)
		c.pending = entries
		c.err = err
		if len(entries) == 0 && err == nil {
			c.err = io.EOF
		}
	}

	d := c.pending[0]
	c.pending = c.pending[1:]
	return &dirEntry{path: filepath.Join(c.dir, d.Name()), d: d}, nil
}

// Close releases the directory handle.
func (c *dirCursor) Close() error {
	return c.f.Close()
}

// dirEntry adapts fs.DirEntry to indexer.DirEntry.
type dirEntry struct {
	path string
	d    fs.DirEntry
}

func (e *dirEntry) Path() string { return e.path }

func (e *dirEntry) Type() (fs.FileMode, error) { return e.d.Type(), nil }

func (e *dirEntry) Info() (fs.FileInfo, error) { return e.d.Info() }

// Compile-time check that OSFilesystem implements indexer.Filesystem interface
var _ indexer.Filesystem = (*OSFilesystem)(nil)
