package vault

import (
	"bytes"
	"strings"
	"testing"

	"fsindex/internal/indexer"
)

// testVaultBehavior exercises the behavior every Vault implementation shares.
func testVaultBehavior(t *testing.T, v indexer.Vault) {
	t.Helper()

	t.Run("missing item reports version 0", func(t *testing.T) {
		got, err := v.GetMetadataVersion("host-a", "index.db")
		if err != nil {
			t.Fatalf("GetMetadataVersion() error = %v", err)
		}
		if got != 0 {
			t.Errorf("GetMetadataVersion() = %d, want 0", got)
		}
	})

	t.Run("missing item cannot be read", func(t *testing.T) {
		var buf bytes.Buffer
		if err := v.GetMetadata("host-a", "index.db", &buf); err == nil {
			t.Error("GetMetadata() expected error for missing item")
		}
	})

	t.Run("put then get", func(t *testing.T) {
		data := strings.Repeat("index-bytes", 100)
		if err := v.PutMetadata("host-a", "index.db", strings.NewReader(data), int64(len(data)), 3); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.GetMetadata("host-a", "index.db", &buf); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("GetMetadata() returned %d bytes, want %d", buf.Len(), len(data))
		}

		version, err := v.GetMetadataVersion("host-a", "index.db")
		if err != nil {
			t.Fatalf("GetMetadataVersion() error = %v", err)
		}
		if version != 3 {
			t.Errorf("GetMetadataVersion() = %d, want 3", version)
		}
	})

	t.Run("overwrite bumps version", func(t *testing.T) {
		if err := v.PutMetadata("host-a", "index.db", strings.NewReader("v2"), 2, 7); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		version, _ := v.GetMetadataVersion("host-a", "index.db")
		if version != 7 {
			t.Errorf("GetMetadataVersion() = %d, want 7", version)
		}
		var buf bytes.Buffer
		v.GetMetadata("host-a", "index.db", &buf)
		if buf.String() != "v2" {
			t.Errorf("GetMetadata() = %q, want v2", buf.String())
		}
	})

	t.Run("hosts are isolated", func(t *testing.T) {
		version, err := v.GetMetadataVersion("host-b", "index.db")
		if err != nil {
			t.Fatalf("GetMetadataVersion() error = %v", err)
		}
		if version != 0 {
			t.Errorf("host-b version = %d, want 0", version)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		if err := v.PutMetadata("host-c", "index.db", strings.NewReader("hello"), 100, 1); err == nil {
			t.Error("PutMetadata() expected size mismatch error")
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
