package indexer

import (
	"fmt"
	"sort"

	"fsindex/internal/model"
)

// IndexService is the orchestration layer that coordinates traversal,
// persistence and diffing for the CLI.
type IndexService struct {
	store     Store
	traverser *Traverser
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewIndexService creates a new IndexService with the provided dependencies.
func NewIndexService(store Store, traverser *Traverser, logger Logger, clock Clock, idgen IDGenerator) *IndexService {
	return &IndexService{
		store:     store,
		traverser: traverser,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// IndexResult summarizes one indexing run.
type IndexResult struct {
	Snapshot  *model.Snapshot
	NodeCount int64
	Linked    int64           // Nodes whose parent_id was resolved
	Previous  *model.Snapshot // Snapshot the run was compared against, if any
	Diff      *DiffResult     // nil when no comparison was made
}

// IndexRoots indexes every root sequentially into a new snapshot.
// Unless force is set, the result is compared with the most recent
// successful snapshot over the same roots.
func (s *IndexService) IndexRoots(roots []AbsPath, force bool) (*IndexResult, error) {
	if err := ValidateRoots(roots); err != nil {
		return nil, err
	}
	rootPaths := RootStrings(roots)

	snapshot, err := s.store.CreateSnapshot(model.SnapshotKindFull, s.idgen.New(), rootPaths)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	s.logger.Info("index run started", "snapshot", snapshot.ID, "roots", len(roots))

	// Only one root's records are held at a time; the comparison below
	// reads both snapshots back from the store.
	var count int64
	for _, root := range roots {
		nodes, err := s.traverser.Traverse(root)
		if err != nil {
			return nil, s.fail(snapshot, count, fmt.Errorf("indexing %s: %w", root, err))
		}
		if _, err := s.store.InsertNodes(snapshot.ID, nodes); err != nil {
			return nil, s.fail(snapshot, count, fmt.Errorf("storing nodes for %s: %w", root, err))
		}
		s.logger.Info("root indexed", "root", root.String(), "nodes", len(nodes))
		count += int64(len(nodes))
	}

	linked, err := s.store.RepairParentIDs(snapshot.ID)
	if err != nil {
		return nil, s.fail(snapshot, count, fmt.Errorf("linking parent ids: %w", err))
	}

	if err := s.store.FinishSnapshot(snapshot.ID, model.SnapshotSuccess, count); err != nil {
		return nil, fmt.Errorf("finishing snapshot: %w", err)
	}
	snapshot.Status = model.SnapshotSuccess
	snapshot.NodeCount = count

	result := &IndexResult{
		Snapshot:  snapshot,
		NodeCount: count,
		Linked:    linked,
	}

	if force {
		s.logger.Info("index run complete", "snapshot", snapshot.ID, "nodes", count)
		return result, nil
	}

	previous, err := s.store.FindLatestSnapshot(model.SnapshotKindFull, rootPaths, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("finding previous snapshot: %w", err)
	}
	if previous == nil {
		s.logger.Debug("no previous snapshot to compare against", "snapshot", snapshot.ID)
		s.logger.Info("index run complete", "snapshot", snapshot.ID, "nodes", count)
		return result, nil
	}

	previousNodes, err := s.store.ListNodes(previous.ID)
	if err != nil {
		return nil, fmt.Errorf("loading previous snapshot: %w", err)
	}
	currentNodes, err := s.store.ListNodes(snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("loading current snapshot: %w", err)
	}
	result.Previous = previous
	result.Diff = Diff(previousNodes, currentNodes)

	s.logger.Info("index run complete",
		"snapshot", snapshot.ID,
		"nodes", count,
		"previous", previous.ID,
		"added", len(result.Diff.Added),
		"removed", len(result.Diff.Removed),
		"modified", len(result.Diff.Modified),
	)
	return result, nil
}

// fail marks the snapshot as failed and returns cause.
func (s *IndexService) fail(snapshot *model.Snapshot, count int64, cause error) error {
	s.logger.Error("index run failed", "snapshot", snapshot.ID, "error", cause)
	if err := s.store.FinishSnapshot(snapshot.ID, model.SnapshotError, count); err != nil {
		s.logger.Error("could not mark snapshot as failed", "snapshot", snapshot.ID, "error", err)
	}
	return cause
}

// GetHistory returns the most recent snapshots, newest first.
func (s *IndexService) GetHistory(limit int) ([]*model.Snapshot, error) {
	snapshots, err := s.store.ListSnapshots(limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snapshots, nil
}

// GetNodeHistory returns every stored record of path, newest first.
func (s *IndexService) GetNodeHistory(path AbsPath) ([]*model.NodeVersion, error) {
	s.logger.Debug("fetching node history", "path", path.String())

	versions, err := s.store.FindNodeVersions(path.String())
	if err != nil {
		return nil, fmt.Errorf("finding node versions: %w", err)
	}

	// Reverse to newest first
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// RootStrings returns the roots as sorted strings, the form in which they
// are stored with a snapshot.
func RootStrings(roots []AbsPath) []string {
	paths := make([]string, len(roots))
	for i, r := range roots {
		paths[i] = r.String()
	}
	sort.Strings(paths)
	return paths
}
