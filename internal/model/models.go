package model

import (
	"fmt"
	"time"
)

// NodeType classifies an indexed filesystem object.
// The integer codes are persisted and must never be renumbered.
type NodeType uint8

const (
	NodeTypeFile      NodeType = 0
	NodeTypeDirectory NodeType = 1
	NodeTypeSymlink   NodeType = 2
	NodeTypeOther     NodeType = 3
	// NodeTypeUnknown marks an entry whose type could not be read at all.
	NodeTypeUnknown NodeType = 4
)

// Code returns the stable storage code for the node type.
func (t NodeType) Code() int {
	return int(t)
}

// NodeTypeFromCode converts a storage code back into a NodeType.
func NodeTypeFromCode(code int) (NodeType, error) {
	if code < int(NodeTypeFile) || code > int(NodeTypeUnknown) {
		return 0, fmt.Errorf("unknown node type code: %d", code)
	}
	return NodeType(code), nil
}

func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeDirectory:
		return "directory"
	case NodeTypeSymlink:
		return "symlink"
	case NodeTypeOther:
		return "other"
	case NodeTypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// ChecksumError is stored in place of a file checksum that could not be computed.
const ChecksumError = "ERR"

// FsNode describes one indexed filesystem object.
// Metadata fields that could not be read are left at zero.
type FsNode struct {
	ID           int64 // Assigned by the store; zero when produced by the indexer
	NodeType     NodeType
	Name         string // Full path as encountered
	Size         int64
	UID          uint32
	GID          uint32
	Permissions  uint32 // Raw st_mode
	CreationDate int64  // Seconds since epoch (birth time)
	ModifiedDate int64  // Seconds since epoch (mtime)
	Path         string // Absolute path
	ParentPath   string // Absolute path of the parent directory, "" for "/"
	SHA1Checksum string // 40 hex chars for files, "" otherwise, ChecksumError on failure
	LinksTo      string // Symlink target, symlinks only
	Inode        int64
	NLinks       int64 // Number of hard links to the inode
	ParentID     int64 // Foreign key to FsNode.ID, resolved by the store after insertion
}

// Snapshot status values.
const (
	SnapshotRunning = "running"
	SnapshotSuccess = "success"
	SnapshotError   = "error"
	SnapshotStopped = "stopped"
)

// Snapshot kinds.
const (
	SnapshotKindFull   = "full"
	SnapshotKindListen = "listen"
)

// Snapshot is one persisted indexing run over a set of roots.
type Snapshot struct {
	ID         int64  // Autoincrement, also used as the published metadata version
	UUID       string
	Kind       string // SnapshotKindFull or SnapshotKindListen
	Roots      []string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	NodeCount  int64
}

// NodeVersion is one stored record of a path together with the snapshot
// it belongs to.
type NodeVersion struct {
	SnapshotID        int64
	SnapshotStartedAt time.Time
	Node              *FsNode
}
