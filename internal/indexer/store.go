package indexer

import "fsindex/internal/model"

// Store persists snapshots and the FsNode records produced by traversal.
// All multi-row writes are implemented with appropriate transaction handling.
type Store interface {
	// Snapshot operations

	// CreateSnapshot records the start of a run and returns it with its ID set.
	CreateSnapshot(kind string, uuid string, roots []string) (*model.Snapshot, error)

	// FinishSnapshot records the end of a run.
	FinishSnapshot(snapshotID int64, status string, nodeCount int64) error

	// FindLatestSnapshot returns the most recent successful snapshot of the
	// given kind over exactly the given roots, with an ID below beforeID.
	// Returns nil if there is none.
	FindLatestSnapshot(kind string, roots []string, beforeID int64) (*model.Snapshot, error)

	// ListSnapshots returns the most recent snapshots, newest first.
	ListSnapshots(limit int) ([]*model.Snapshot, error)

	// MaxSnapshotID returns the highest snapshot ID, or 0 for an empty store.
	MaxSnapshotID() (int64, error)

	// Node operations

	// InsertNodes stores nodes in order within a single transaction and
	// returns the assigned IDs. The nodes themselves are not modified.
	InsertNodes(snapshotID int64, nodes []*model.FsNode) ([]int64, error)

	// RepairParentIDs resolves parent_id for every node of the snapshot by
	// looking up parent_path among the snapshot's nodes. Returns the number
	// of nodes that were linked.
	RepairParentIDs(snapshotID int64) (int64, error)

	// ListNodes returns all nodes of a snapshot in insertion order.
	ListNodes(snapshotID int64) ([]*model.FsNode, error)

	// FindNodeVersions returns every stored record for path, oldest first.
	FindNodeVersions(path string) ([]*model.NodeVersion, error)

	// Close closes the store.
	Close() error
}
