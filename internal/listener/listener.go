// Package listener keeps a "listen" snapshot current with changes made
// under a set of roots while the process is running.
package listener

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"fsindex/internal/indexer"
	"fsindex/internal/model"
)

// Result summarizes a finished listen session.
type Result struct {
	Snapshot *model.Snapshot
	Baseline int64 // Records written by the initial walk
	Changes  int64 // Records appended for change events
	Linked   int64
}

// Listener records a baseline of every root and then appends a fresh record
// for each path reported as created, written or chmodded. Directories
// created while listening are walked and watched as well.
type Listener struct {
	store     indexer.Store
	fsys      indexer.Filesystem
	traverser *indexer.Traverser
	logger    indexer.Logger
	idgen     indexer.IDGenerator
	ready     chan struct{}
}

// New creates a Listener. It must not be run more than once.
func New(store indexer.Store, fsys indexer.Filesystem, traverser *indexer.Traverser, logger indexer.Logger, idgen indexer.IDGenerator) *Listener {
	return &Listener{
		store:     store,
		fsys:      fsys,
		traverser: traverser,
		logger:    logger,
		idgen:     idgen,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the baseline is stored and every directory is watched.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// session is the state of one Run.
type session struct {
	*Listener
	watcher  *fsnotify.Watcher
	snapshot *model.Snapshot
	buf      []byte
	baseline int64
	changes  int64
	linked   int64
}

// Run indexes the roots into a new listen snapshot and then records changes
// until ctx is cancelled. The snapshot is finished as "stopped" on a clean
// shutdown and as "error" if the baseline could not be stored.
func (l *Listener) Run(ctx context.Context, roots []indexer.AbsPath) (*Result, error) {
	if err := indexer.ValidateRoots(roots); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	snapshot, err := l.store.CreateSnapshot(model.SnapshotKindListen, l.idgen.New(), indexer.RootStrings(roots))
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	s := &session{
		Listener: l,
		watcher:  watcher,
		snapshot: snapshot,
		buf:      make([]byte, indexer.ReadBufferSize),
	}
	l.logger.Info("listen session started", "snapshot", snapshot.ID, "roots", len(roots))

	for _, root := range roots {
		n, err := s.walk(root)
		if err != nil {
			return nil, s.finish(model.SnapshotError, fmt.Errorf("indexing %s: %w", root, err))
		}
		s.baseline += n
		l.logger.Info("root indexed", "root", root.String(), "nodes", n)
	}
	close(l.ready)

	s.loop(ctx)

	if err := s.finish(model.SnapshotStopped, nil); err != nil {
		return nil, err
	}
	return &Result{
		Snapshot: snapshot,
		Baseline: s.baseline,
		Changes:  s.changes,
		Linked:   s.linked,
	}, nil
}

// walk stores every record under dir and watches dir and its subdirectories.
func (s *session) walk(dir indexer.AbsPath) (int64, error) {
	s.watch(dir.String())

	var nodes []*model.FsNode
	err := s.traverser.Walk(dir, func(node *model.FsNode) error {
		if node.NodeType == model.NodeTypeDirectory {
			s.watch(node.Path)
		}
		nodes = append(nodes, node)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if _, err := s.store.InsertNodes(s.snapshot.ID, nodes); err != nil {
		return 0, fmt.Errorf("storing nodes: %w", err)
	}
	return int64(len(nodes)), nil
}

func (s *session) watch(path string) {
	if err := s.watcher.Add(path); err != nil {
		s.logger.Warn("could not watch directory", "path", path, "error", err)
		return
	}
	s.logger.Trace("watching directory", "path", path)
}

func (s *session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("listen session interrupted", "snapshot", s.snapshot.ID)
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func (s *session) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		s.record(ev)
	case ev.Has(fsnotify.Remove):
		s.logger.Info("path removed", "path", ev.Name)
	case ev.Has(fsnotify.Rename):
		s.logger.Info("path renamed away", "path", ev.Name)
	}
}

// record appends a fresh record for the changed path.
func (s *session) record(ev fsnotify.Event) {
	entry, err := s.fsys.Entry(ev.Name)
	if err != nil {
		// Short-lived files are often gone before the event is handled.
		s.logger.Debug("changed path vanished", "path", ev.Name, "error", err)
		return
	}

	node := s.traverser.Processor().Process(entry, s.buf)
	if _, err := s.store.InsertNodes(s.snapshot.ID, []*model.FsNode{node}); err != nil {
		s.logger.Error("could not store change", "path", node.Path, "error", err)
		return
	}
	s.changes++
	s.logger.Debug("change recorded", "path", node.Path, "op", ev.Op.String())

	if node.NodeType != model.NodeTypeDirectory || !ev.Has(fsnotify.Create) {
		return
	}

	// Entries may have been created in the new directory before it was watched.
	dir, err := indexer.NewAbsPath(node.Path)
	if err != nil {
		return
	}
	n, err := s.walk(dir)
	if err != nil {
		s.logger.Warn("could not index new directory", "path", node.Path, "error", err)
		return
	}
	s.changes += n
}

// finish links parents and closes the snapshot with status. It returns
// cause, or the error from finishing the snapshot when cause is nil.
func (s *session) finish(status string, cause error) error {
	count := s.baseline + s.changes

	linked, err := s.store.RepairParentIDs(s.snapshot.ID)
	if err != nil {
		s.logger.Error("could not link parent ids", "snapshot", s.snapshot.ID, "error", err)
		if cause == nil {
			cause = fmt.Errorf("linking parent ids: %w", err)
			status = model.SnapshotError
		}
	}

	if err := s.store.FinishSnapshot(s.snapshot.ID, status, count); err != nil {
		s.logger.Error("could not finish snapshot", "snapshot", s.snapshot.ID, "error", err)
		if cause == nil {
			cause = fmt.Errorf("finishing snapshot: %w", err)
		}
	}
	s.snapshot.Status = status
	s.snapshot.NodeCount = count
	s.linked = linked

	if cause != nil {
		s.logger.Error("listen session failed", "snapshot", s.snapshot.ID, "error", cause)
		return cause
	}
	s.logger.Info("listen session stopped",
		"snapshot", s.snapshot.ID,
		"baseline", s.baseline,
		"changes", s.changes,
		"linked", linked,
	)
	return nil
}
