package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"fsindex/internal/indexer"
	"fsindex/internal/model"
)

func TestShortChecksum(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "------------"},
		{in: model.ChecksumError, want: "ERR         "},
		{in: "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", want: "aaf4c61ddcc5"},
	}
	for _, tt := range tests {
		if got := shortChecksum(tt.in); got != tt.want {
			t.Errorf("shortChecksum(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteIndexResult(t *testing.T) {
	snapshot := &model.Snapshot{ID: 7}
	previous := &model.Snapshot{ID: 5}

	tests := []struct {
		name string
		res  *indexer.IndexResult
		want []string
	}{
		{
			name: "no comparison",
			res:  &indexer.IndexResult{Snapshot: snapshot, NodeCount: 12345},
			want: []string{"Snapshot #7: 12,345 entries indexed in 1.5s\n"},
		},
		{
			name: "no changes",
			res: &indexer.IndexResult{
				Snapshot: snapshot, NodeCount: 3, Previous: previous,
				Diff: &indexer.DiffResult{},
			},
			want: []string{"No changes since snapshot #5.\n"},
		},
		{
			name: "changes",
			res: &indexer.IndexResult{
				Snapshot: snapshot, NodeCount: 3, Previous: previous,
				Diff: &indexer.DiffResult{
					Added:    []*indexer.Change{{Path: "/d/new"}},
					Removed:  []*indexer.Change{{Path: "/d/old"}},
					Modified: []*indexer.Change{{Path: "/d/f", Fields: []string{"size", "checksum"}}},
				},
			},
			want: []string{
				"+ /d/new\n",
				"- /d/old\n",
				"~ /d/f (size, checksum)\n",
				"Since snapshot #5: 1 added, 1 removed, 1 modified\n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeIndexResult(&buf, tt.res, 1500*time.Millisecond)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestWriteNodeVersions(t *testing.T) {
	var buf bytes.Buffer
	writeNodeVersions(&buf, []*model.NodeVersion{{
		SnapshotID:        3,
		SnapshotStartedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Node: &model.FsNode{
			NodeType:     model.NodeTypeFile,
			Size:         2048,
			SHA1Checksum: "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		},
	}})

	got := buf.String()
	for _, want := range []string{"aaf4c61ddcc5", "#3", "file", "2.0 kB"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}
