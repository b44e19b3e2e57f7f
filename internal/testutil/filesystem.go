package testutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"fsindex/internal/indexer"
)

var errBirthTimeUnsupported = errors.New("birth time not recorded")

// MockNode is one object in the mock filesystem. The *Err fields inject
// faults into the matching Filesystem or DirEntry operation.
type MockNode struct {
	Mode      fs.FileMode // type bits and permissions
	Content   []byte
	Target    string // symlink target
	ModTime   time.Time
	BirthTime time.Time // set to ModTime when added; zero means unsupported
	UID       uint32
	GID       uint32
	Inode     uint64
	Nlink     uint64

	OpenErr     error // Open for files, OpenDir for directories
	TypeErr     error
	InfoErr     error
	StatErr     error
	ReadlinkErr error
	BirthErr    error

	// ReadScript is consumed one element per Read call before the content
	// is served normally: a non-nil error is returned as (0, err), a nil
	// element delivers the next chunk of content.
	ReadScript []error

	// ListErrs are yielded by a cursor over this directory before any entry.
	ListErrs []error
}

// MockFilesystem is an in-memory indexer.Filesystem with fault injection.
// Directory listings are in name order.
type MockFilesystem struct {
	mu          sync.Mutex
	nodes       map[string]*MockNode
	nextInode   uint64
	openCursors int
	reads       map[string]int
}

// NewMockFilesystem creates a mock filesystem containing only "/".
func NewMockFilesystem() *MockFilesystem {
	m := &MockFilesystem{
		nodes: make(map[string]*MockNode),
		reads: make(map[string]int),
	}
	m.AddDirectory("/")
	return m
}

func (m *MockFilesystem) add(path string, node *MockNode) *MockNode {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextInode++
	node.Inode = m.nextInode
	if node.ModTime.IsZero() {
		node.ModTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	}
	if node.BirthTime.IsZero() {
		node.BirthTime = node.ModTime
	}
	if node.Nlink == 0 {
		node.Nlink = 1
	}
	node.UID, node.GID = 1000, 1000
	m.nodes[filepath.Clean(path)] = node
	return node
}

// AddDirectory adds a directory and returns it for further tweaking.
func (m *MockFilesystem) AddDirectory(path string) *MockNode {
	return m.add(path, &MockNode{Mode: fs.ModeDir | 0755, Nlink: 2})
}

// AddFile adds a regular file with the given content.
func (m *MockFilesystem) AddFile(path string, content []byte) *MockNode {
	return m.add(path, &MockNode{Mode: 0644, Content: content})
}

// AddSymlink adds a symlink pointing at target.
func (m *MockFilesystem) AddSymlink(path, target string) *MockNode {
	return m.add(path, &MockNode{Mode: fs.ModeSymlink | 0777, Target: target})
}

// AddNode adds an object with an arbitrary mode, e.g. fs.ModeNamedPipe.
func (m *MockFilesystem) AddNode(path string, mode fs.FileMode) *MockNode {
	return m.add(path, &MockNode{Mode: mode})
}

// Reads returns how many Read calls were made on files at path.
func (m *MockFilesystem) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[path]
}

// OpenCursors returns the number of directory cursors not yet closed.
func (m *MockFilesystem) OpenCursors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCursors
}

func (m *MockFilesystem) lookup(path string) (*MockNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[path]
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	return node, nil
}

func (m *MockFilesystem) OpenDir(path string) (indexer.DirCursor, error) {
	node, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	if !node.Mode.IsDir() {
		return nil, &fs.PathError{Op: "opendir", Path: path, Err: syscall.ENOTDIR}
	}
	if node.OpenErr != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: node.OpenErr}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var children []string
	for p := range m.nodes {
		if p != path && filepath.Dir(p) == path {
			children = append(children, p)
		}
	}
	sort.Strings(children)

	m.openCursors++
	return &mockCursor{
		fs:       m,
		errs:     append([]error(nil), node.ListErrs...),
		children: children,
	}, nil
}

func (m *MockFilesystem) Entry(path string) (indexer.DirEntry, error) {
	if _, err := m.lookup(path); err != nil {
		return nil, err
	}
	return &mockEntry{fs: m, path: path}, nil
}

func (m *MockFilesystem) Open(path string) (io.ReadCloser, error) {
	node, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	if node.Mode.IsDir() {
		return nil, fmt.Errorf("cannot open directory: %s", path)
	}
	if node.OpenErr != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: node.OpenErr}
	}
	return &mockReader{
		fs:      m,
		path:    path,
		script:  append([]error(nil), node.ReadScript...),
		content: node.Content,
	}, nil
}

func (m *MockFilesystem) Readlink(path string) (string, error) {
	node, err := m.lookup(path)
	if err != nil {
		return "", err
	}
	if node.ReadlinkErr != nil {
		return "", node.ReadlinkErr
	}
	if node.Mode&fs.ModeSymlink == 0 {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: errors.New("invalid argument")}
	}
	return node.Target, nil
}

func (m *MockFilesystem) ExtractStatData(info fs.FileInfo) (*indexer.StatData, error) {
	node, ok := info.Sys().(*MockNode)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *MockNode, got %T", info.Sys())
	}
	if node.StatErr != nil {
		return nil, node.StatErr
	}
	return &indexer.StatData{
		UID:   node.UID,
		GID:   node.GID,
		Mode:  uint32(node.Mode.Perm()),
		Inode: node.Inode,
		Nlink: node.Nlink,
	}, nil
}

func (m *MockFilesystem) BirthTime(path string) (time.Time, error) {
	node, err := m.lookup(path)
	if err != nil {
		return time.Time{}, err
	}
	if node.BirthErr != nil {
		return time.Time{}, node.BirthErr
	}
	if node.BirthTime.IsZero() {
		return time.Time{}, errBirthTimeUnsupported
	}
	return node.BirthTime, nil
}

type mockCursor struct {
	fs       *MockFilesystem
	errs     []error
	children []string
	closed   bool
}

func (c *mockCursor) Next() (indexer.DirEntry, error) {
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	if len(c.children) == 0 {
		return nil, io.EOF
	}
	path := c.children[0]
	c.children = c.children[1:]
	return &mockEntry{fs: c.fs, path: path}, nil
}

func (c *mockCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.fs.mu.Lock()
	c.fs.openCursors--
	c.fs.mu.Unlock()
	return nil
}

type mockEntry struct {
	fs   *MockFilesystem
	path string
}

func (e *mockEntry) Path() string { return e.path }

func (e *mockEntry) Type() (fs.FileMode, error) {
	node, err := e.fs.lookup(e.path)
	if err != nil {
		return 0, err
	}
	if node.TypeErr != nil {
		return 0, node.TypeErr
	}
	return node.Mode.Type(), nil
}

func (e *mockEntry) Info() (fs.FileInfo, error) {
	node, err := e.fs.lookup(e.path)
	if err != nil {
		return nil, err
	}
	if node.InfoErr != nil {
		return nil, node.InfoErr
	}
	return &mockFileInfo{name: filepath.Base(e.path), node: node}, nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name string
	node *MockNode
}

func (i *mockFileInfo) Name() string       { return i.name }
func (i *mockFileInfo) Size() int64        { return int64(len(i.node.Content)) }
func (i *mockFileInfo) Mode() fs.FileMode  { return i.node.Mode }
func (i *mockFileInfo) ModTime() time.Time { return i.node.ModTime }
func (i *mockFileInfo) IsDir() bool        { return i.node.Mode.IsDir() }
func (i *mockFileInfo) Sys() any           { return i.node }

type mockReader struct {
	fs      *MockFilesystem
	path    string
	script  []error
	content []byte
}

func (r *mockReader) Read(p []byte) (int, error) {
	r.fs.mu.Lock()
	r.fs.reads[r.path]++
	r.fs.mu.Unlock()

	if len(r.script) > 0 {
		step := r.script[0]
		r.script = r.script[1:]
		if step != nil {
			return 0, step
		}
	}
	if len(r.content) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.content)
	r.content = r.content[n:]
	return n, nil
}

func (r *mockReader) Close() error { return nil }

// Compile-time check
var _ indexer.Filesystem = (*MockFilesystem)(nil)
