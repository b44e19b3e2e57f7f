package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fsindex/internal/indexer"
)

const versionSuffix = ".version"

// FileSystemVault publishes index databases into a local directory, such as
// a mounted backup disk or a synced folder. Every host has its own
// directory holding the encrypted database and a marker with the snapshot
// ID it was published at:
//
//	<root>/metadata/<hostID>/index.db
//	<root>/metadata/<hostID>/index.db.version
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault prepares <root>/metadata and returns a vault on it.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	v := &FileSystemVault{name: name, root: root}
	if err := os.MkdirAll(v.metadataDir(), 0755); err != nil {
		return nil, fmt.Errorf("preparing vault %s: %w", name, err)
	}
	return v, nil
}

func (v *FileSystemVault) Name() string { return v.name }

func (v *FileSystemVault) metadataDir() string {
	return filepath.Join(v.root, "metadata")
}

// published returns where a host's item and its version marker live.
func (v *FileSystemVault) published(hostID, name string) (item, marker string) {
	item = filepath.Join(v.metadataDir(), hostID, name)
	return item, item + versionSuffix
}

// PutMetadata replaces the published item, then its version marker. Both
// are renamed into place, so readers see either the old or the new copy.
func (v *FileSystemVault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	item, marker := v.published(hostID, name)
	if err := os.MkdirAll(filepath.Dir(item), 0755); err != nil {
		return fmt.Errorf("creating directory for host %s: %w", hostID, err)
	}

	if err := replaceFile(item, r, size); err != nil {
		return fmt.Errorf("publishing %s: %w", name, err)
	}

	mark := strconv.FormatInt(version, 10)
	if err := replaceFile(marker, strings.NewReader(mark), int64(len(mark))); err != nil {
		return fmt.Errorf("recording version of %s: %w", name, err)
	}
	return nil
}

// GetMetadataVersion reads the version marker. A host that never published
// reports 0.
func (v *FileSystemVault) GetMetadataVersion(hostID string, name string) (int64, error) {
	_, marker := v.published(hostID, name)
	data, err := os.ReadFile(marker)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("reading version of %s for host %s: %w", name, hostID, err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt version marker %s: %w", marker, err)
	}
	return version, nil
}

// GetMetadata copies the published item to w.
func (v *FileSystemVault) GetMetadata(hostID string, name string, w io.Writer) error {
	item, _ := v.published(hostID, name)
	f, err := os.Open(item)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("host %s has not published %s: %w", hostID, name, err)
	}
	if err != nil {
		return fmt.Errorf("opening published %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copying published %s: %w", name, err)
	}
	return nil
}

// ValidateSetup checks that the vault root and its metadata directory exist.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.metadataDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault %s: %s is not a directory", v.name, dir)
		}
	}
	return nil
}

// replaceFile writes exactly size bytes from r to a temp file beside dst,
// syncs it and renames it over dst. The temp file is removed on failure.
func replaceFile(dst string, r io.Reader, size int64) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	return os.Rename(tmp.Name(), dst)
}

var _ indexer.Vault = (*FileSystemVault)(nil)
