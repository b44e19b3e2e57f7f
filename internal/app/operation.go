package app

import "time"

// Run tracks one CLI invocation. Read-only commands never write a snapshot
// and leave SnapshotID at 0. Commands that index record the snapshot they
// wrote, whose ID becomes the published version of the database.
type Run struct {
	ID         string // Appears in every log line of the invocation
	Command    string
	SnapshotID int64
}

// NewRun creates a run for command, identified by its start time.
func NewRun(command string, started time.Time) *Run {
	return &Run{
		ID:      started.UTC().Format("20060102T150405Z"),
		Command: command,
	}
}

// Record notes that the run wrote snapshotID. The highest ID wins.
func (r *Run) Record(snapshotID int64) {
	if snapshotID > r.SnapshotID {
		r.SnapshotID = snapshotID
	}
}

// Persisted returns true if this run wrote at least one snapshot.
func (r *Run) Persisted() bool {
	return r.SnapshotID != 0
}
