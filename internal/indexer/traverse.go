package indexer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"fsindex/internal/model"
)

// Traverser walks a directory tree depth-first without recursion.
// It keeps one open DirCursor per pending directory level, so memory grows
// with the depth of the tree rather than the number of entries.
//
// Symlinks are recorded but never followed. There is no protection against
// directory cycles created by other means (bind mounts).
type Traverser struct {
	fsys      Filesystem
	processor *EntryProcessor
	logger    Logger
	clock     Clock
}

// NewTraverser creates a Traverser with its own EntryProcessor and
// ChecksumCalculator reading through fsys.
func NewTraverser(fsys Filesystem, logger Logger, clock Clock) *Traverser {
	checksum := NewChecksumCalculator(fsys, logger, clock)
	return &Traverser{
		fsys:      fsys,
		processor: NewEntryProcessor(fsys, checksum, logger, clock),
		logger:    logger,
		clock:     clock,
	}
}

// Processor returns the EntryProcessor used for each entry.
func (t *Traverser) Processor() *EntryProcessor {
	return t.processor
}

// frame is one pending directory on the traversal stack.
type frame struct {
	cursor  DirCursor
	path    string
	started time.Time
}

// Traverse walks root and returns the records for every entry beneath it,
// in pre-order. The root itself is not part of the result.
func (t *Traverser) Traverse(root AbsPath) ([]*model.FsNode, error) {
	var nodes []*model.FsNode
	err := t.Walk(root, func(node *model.FsNode) error {
		nodes = append(nodes, node)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Walk walks root depth-first and hands each record to emit as soon as it
// is built. Recoverable faults are logged and skipped. Walk only fails if
// root cannot be opened or emit returns an error.
func (t *Traverser) Walk(root AbsPath, emit func(*model.FsNode) error) error {
	if root.IsZero() {
		panic("indexer: traversal root is empty")
	}

	start := t.clock.Now()
	t.logger.Debug("traversal start", "root", root.String())

	rootCursor, err := t.fsys.OpenDir(root.String())
	if err != nil {
		return fmt.Errorf("opening root directory %s: %w", root, err)
	}

	// The scratch buffer belongs to this call and is reused for every file.
	buf := make([]byte, ReadBufferSize)
	stack := []*frame{{cursor: rootCursor, path: root.String(), started: t.clock.Now()}}

	defer func() {
		// Only reached with a non-empty stack when emit failed.
		for _, f := range stack {
			f.cursor.Close()
		}
	}()

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		entry, err := top.cursor.Next()
		if errors.Is(err, io.EOF) {
			top.cursor.Close()
			stack = stack[:len(stack)-1]
			t.logger.Debug("directory indexing done", "path", top.path, "elapsed_ms", t.clock.Now().Sub(top.started).Milliseconds())
			continue
		}
		if err != nil {
			t.logger.Warn("next child was an error", "dir", top.path, "error", err)
			continue
		}

		node := t.processor.Process(entry, buf)
		if err := emit(node); err != nil {
			return fmt.Errorf("emitting %s: %w", node.Path, err)
		}

		if node.NodeType != model.NodeTypeDirectory {
			continue
		}

		cursor, err := t.fsys.OpenDir(node.Path)
		if err != nil {
			t.logger.Warn("failed to descend", "path", node.Path, "error", err)
			continue
		}
		t.logger.Debug("descending into directory", "path", node.Path)
		stack = append(stack, &frame{cursor: cursor, path: node.Path, started: t.clock.Now()})
	}

	t.logger.Debug("traversal done", "root", root.String(), "elapsed_ms", t.clock.Now().Sub(start).Milliseconds())
	return nil
}
