package indexer

import (
	"sort"

	"fsindex/internal/model"
)

// Change describes one path whose record differs between two snapshots.
type Change struct {
	Path   string
	Old    *model.FsNode // nil for added paths
	New    *model.FsNode // nil for removed paths
	Fields []string      // Differing fields, for modified paths
}

// DiffResult groups the changes between two snapshots, each sorted by path.
type DiffResult struct {
	Added    []*Change
	Removed  []*Change
	Modified []*Change
}

// Empty reports whether the two snapshots are equivalent.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff compares two node sequences by path. Identity fields (ID, ParentID,
// inode, link count, creation date) are not compared; they change whenever
// a file is rewritten or the index is rebuilt.
func Diff(previous, current []*model.FsNode) *DiffResult {
	before := make(map[string]*model.FsNode, len(previous))
	for _, n := range previous {
		before[n.Path] = n
	}

	result := &DiffResult{}
	seen := make(map[string]bool, len(current))

	for _, n := range current {
		seen[n.Path] = true
		old, ok := before[n.Path]
		if !ok {
			result.Added = append(result.Added, &Change{Path: n.Path, New: n})
			continue
		}
		if fields := changedFields(old, n); len(fields) > 0 {
			result.Modified = append(result.Modified, &Change{Path: n.Path, Old: old, New: n, Fields: fields})
		}
	}

	for _, n := range previous {
		if !seen[n.Path] {
			result.Removed = append(result.Removed, &Change{Path: n.Path, Old: n})
		}
	}

	for _, changes := range [][]*Change{result.Added, result.Removed, result.Modified} {
		sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	}
	return result
}

// changedFields lists the compared fields that differ between a and b.
func changedFields(a, b *model.FsNode) []string {
	var fields []string
	if a.NodeType != b.NodeType {
		fields = append(fields, "node_type")
	}
	if a.Size != b.Size {
		fields = append(fields, "size")
	}
	if a.Permissions != b.Permissions {
		fields = append(fields, "permissions")
	}
	if a.UID != b.UID {
		fields = append(fields, "uid")
	}
	if a.GID != b.GID {
		fields = append(fields, "gid")
	}
	if a.ModifiedDate != b.ModifiedDate {
		fields = append(fields, "modified_date")
	}
	if a.SHA1Checksum != b.SHA1Checksum {
		fields = append(fields, "sha1_checksum")
	}
	if a.LinksTo != b.LinksTo {
		fields = append(fields, "links_to")
	}
	return fields
}
