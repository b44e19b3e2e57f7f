package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"fsindex/internal/indexer"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It keeps every published item in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	items    map[string][]byte // "hostID/name" -> data
	versions map[string]int64  // "hostID/name" -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		items:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Name returns the configured vault name.
func (m *MemoryVault) Name() string {
	return m.name
}

// metadataKey returns the map key for a host/name pair.
func metadataKey(hostID, name string) string {
	return hostID + "/" + name
}

// PutMetadata stores a named item for a specific host.
func (m *MemoryVault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(hostID, name)
	m.items[key] = data
	m.versions[key] = version
	return nil
}

// GetMetadataVersion returns the version for a named item on a host.
// Returns 0 if nothing has been stored for this host/name.
func (m *MemoryVault) GetMetadataVersion(hostID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[metadataKey(hostID, name)], nil
}

// GetMetadata retrieves a named item for a specific host.
func (m *MemoryVault) GetMetadata(hostID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[metadataKey(hostID, name)]
	if !ok {
		return fmt.Errorf("metadata %q not found for host: %s", name, hostID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements indexer.Vault interface
var _ indexer.Vault = (*MemoryVault)(nil)
