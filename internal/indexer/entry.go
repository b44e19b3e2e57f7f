package indexer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"fsindex/internal/model"
)

// EntryProcessor turns directory entries into FsNode records.
// Faults while reading an entry degrade single fields to their zero value
// and are logged; they never discard the record.
type EntryProcessor struct {
	fsys     Filesystem
	checksum *ChecksumCalculator
	logger   Logger
	clock    Clock
}

// NewEntryProcessor creates an EntryProcessor reading through fsys.
func NewEntryProcessor(fsys Filesystem, checksum *ChecksumCalculator, logger Logger, clock Clock) *EntryProcessor {
	return &EntryProcessor{
		fsys:     fsys,
		checksum: checksum,
		logger:   logger,
		clock:    clock,
	}
}

// Process builds the FsNode for entry. buf is the caller's scratch buffer,
// handed to the checksum calculator for regular files.
func (p *EntryProcessor) Process(entry DirEntry, buf []byte) *model.FsNode {
	path := entry.Path()
	if !filepath.IsAbs(path) {
		panic(fmt.Sprintf("indexer: entry path is not absolute: %q", path))
	}

	start := p.clock.Now()
	p.logger.Trace("collecting file metadata", "path", path)

	node := &model.FsNode{
		Name:       path,
		Path:       path,
		ParentPath: ParentPath(path),
		NodeType:   p.classify(entry),
	}

	if info, err := entry.Info(); err != nil {
		p.logger.Warn("could not read metadata", "path", path, "error", err)
	} else {
		node.Size = info.Size()
		node.ModifiedDate = unixSeconds(info.ModTime())

		if stat, err := p.fsys.ExtractStatData(info); err != nil {
			p.logger.Warn("could not read stat data", "path", path, "error", err)
		} else {
			node.UID = stat.UID
			node.GID = stat.GID
			node.Permissions = stat.Mode
			node.Inode = int64(stat.Inode)
			node.NLinks = int64(stat.Nlink)
		}
	}

	if born, err := p.fsys.BirthTime(path); err != nil {
		p.logger.Warn("could not read creation date", "path", path, "error", err)
	} else {
		node.CreationDate = unixSeconds(born)
	}

	switch node.NodeType {
	case model.NodeTypeSymlink:
		target, err := p.fsys.Readlink(path)
		if err != nil {
			p.logger.Warn("could not resolve symlink path", "path", path, "error", err)
		} else {
			node.LinksTo = target
		}
	case model.NodeTypeFile:
		node.SHA1Checksum = p.checksum.Checksum(path, buf)
	}

	p.logger.Trace("indexing of entry done", "path", path, "elapsed_ms", p.clock.Now().Sub(start).Milliseconds())
	return node
}

// classify maps the entry's reported type onto a NodeType.
func (p *EntryProcessor) classify(entry DirEntry) model.NodeType {
	mode, err := entry.Type()
	if err != nil {
		p.logger.Warn("could not read node type", "path", entry.Path(), "error", err)
		return model.NodeTypeUnknown
	}

	switch {
	case mode.IsDir():
		return model.NodeTypeDirectory
	case mode.IsRegular():
		return model.NodeTypeFile
	case mode&fs.ModeSymlink != 0:
		return model.NodeTypeSymlink
	default:
		p.logger.Warn("unsupported node type", "path", entry.Path(), "mode", mode.String())
		return model.NodeTypeOther
	}
}

// unixSeconds converts t to seconds since the epoch; times before the
// epoch are reported as zero.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	secs := t.Unix()
	if secs < 0 {
		return 0
	}
	return secs
}
