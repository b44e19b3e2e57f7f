package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"fsindex/internal/indexer"
	"fsindex/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// shortChecksum abbreviates a SHA-1 for display. Directories and symlinks
// have no checksum and the failure sentinel is shown as is.
func shortChecksum(sum string) string {
	switch {
	case sum == "":
		return strings.Repeat("-", 12)
	case len(sum) < 12:
		return fmt.Sprintf("%-12s", sum)
	default:
		return sum[:12]
	}
}

func writeIndexResult(w io.Writer, res *indexer.IndexResult, elapsed time.Duration) {
	fmt.Fprintf(w, "Snapshot #%d: %s entries indexed in %s\n",
		res.Snapshot.ID, humanize.Comma(res.NodeCount), elapsed.Truncate(time.Millisecond))

	if res.Diff == nil {
		return
	}
	if res.Diff.Empty() {
		fmt.Fprintf(w, "No changes since snapshot #%d.\n", res.Previous.ID)
		return
	}

	for _, c := range res.Diff.Added {
		fmt.Fprintf(w, "+ %s\n", c.Path)
	}
	for _, c := range res.Diff.Removed {
		fmt.Fprintf(w, "- %s\n", c.Path)
	}
	for _, c := range res.Diff.Modified {
		fmt.Fprintf(w, "~ %s (%s)\n", c.Path, strings.Join(c.Fields, ", "))
	}
	fmt.Fprintf(w, "Since snapshot #%d: %s added, %s removed, %s modified\n",
		res.Previous.ID,
		humanize.Comma(int64(len(res.Diff.Added))),
		humanize.Comma(int64(len(res.Diff.Removed))),
		humanize.Comma(int64(len(res.Diff.Modified))),
	)
}

func writeSnapshots(w io.Writer, snapshots []*model.Snapshot) {
	for _, s := range snapshots {
		duration := ""
		if s.FinishedAt != nil {
			duration = s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Fprintf(w, "#%d  %-6s  %s  %-8s  %10s  %-8s  %s\n",
			s.ID,
			s.Kind,
			s.StartedAt.Local().Format(timeLayout),
			s.Status,
			humanize.Comma(s.NodeCount),
			duration,
			strings.Join(s.Roots, " "),
		)
	}
}

func writeNodeVersions(w io.Writer, versions []*model.NodeVersion) {
	for _, v := range versions {
		n := v.Node
		fmt.Fprintf(w, "%s  %s  #%d  %-9s  %8s  mtime:%s\n",
			shortChecksum(n.SHA1Checksum),
			v.SnapshotStartedAt.Local().Format(timeLayout),
			v.SnapshotID,
			n.NodeType,
			humanize.Bytes(uint64(max(n.Size, 0))),
			time.Unix(n.ModifiedDate, 0).Local().Format(timeLayout),
		)
	}
}
