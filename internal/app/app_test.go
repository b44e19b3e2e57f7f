package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fsindex/internal/config"
	"fsindex/internal/database"
	"fsindex/internal/model"
	"fsindex/internal/testutil"
	"fsindex/internal/vault"
)

// testConfig returns a config rooted in a temp dir with an on-disk database
// and the test encryptor. withVault adds a filesystem vault.
func testConfig(t *testing.T, withVault bool) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	if withVault {
		cfg.Vaults = []config.VaultConfig{{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(base, "vault"),
		}}
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, command string) *IndexApp {
	t.Helper()
	a, err := newIndexApp(cfg, command, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newIndexApp() error = %v", err)
	}
	return a
}

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func publishedVersion(t *testing.T, cfg *config.Config) int64 {
	t.Helper()
	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		t.Fatal(err)
	}
	version, err := v.GetMetadataVersion(cfg.HostID, MetadataName)
	if err != nil {
		t.Fatal(err)
	}
	return version
}

func TestIndexApp_IndexAndHistory(t *testing.T) {
	cfg := testConfig(t, false)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	first, err := a.Index([]string{root}, false)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if first.NodeCount != 2 {
		t.Errorf("NodeCount = %d, want 2", first.NodeCount)
	}
	if first.Diff != nil {
		t.Error("first index should not be compared with anything")
	}

	if err := os.WriteFile(filepath.Join(root, "b.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	second, err := a.Index([]string{root}, false)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if second.Diff == nil || len(second.Diff.Added) != 1 {
		t.Fatalf("Diff = %+v, want one added path", second.Diff)
	}
	if got := second.Diff.Added[0].Path; got != filepath.Join(root, "b.txt") {
		t.Errorf("added path = %q", got)
	}

	history, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].ID != second.Snapshot.ID {
		t.Errorf("history = %+v, want two snapshots newest first", history)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestIndexApp_ForceSkipsComparison(t *testing.T) {
	cfg := testConfig(t, false)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	defer a.Close()

	if _, err := a.Index([]string{root}, false); err != nil {
		t.Fatal(err)
	}
	res, err := a.Index([]string{root}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Diff != nil || res.Previous != nil {
		t.Error("forced index should not compare with a previous snapshot")
	}
}

func TestIndexApp_NodeHistoryOfRelativePath(t *testing.T) {
	cfg := testConfig(t, false)
	root := sampleTree(t)
	t.Chdir(root)

	a := newTestApp(t, cfg, "index")
	defer a.Close()

	if _, err := a.Index([]string{"."}, true); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	versions, err := a.GetNodeHistory("docs/a.txt")
	if err != nil {
		t.Fatalf("GetNodeHistory() error = %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
	if versions[0].Node.Size != int64(len("alpha")) {
		t.Errorf("Size = %d, want %d", versions[0].Node.Size, len("alpha"))
	}
}

func TestIndexApp_IndexRejectsOverlappingRoots(t *testing.T) {
	cfg := testConfig(t, false)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	defer a.Close()

	if _, err := a.Index([]string{root, filepath.Join(root, "docs")}, true); err == nil {
		t.Fatal("Index() error = nil, want error for overlapping roots")
	}
	if _, err := a.Index(nil, true); err == nil {
		t.Fatal("Index() error = nil, want error for no directories")
	}
}

func TestIndexApp_PublishesOnClose(t *testing.T) {
	cfg := testConfig(t, true)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	res, err := a.Index([]string{root}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := publishedVersion(t, cfg); got != res.Snapshot.ID {
		t.Errorf("published version = %d, want %d", got, res.Snapshot.ID)
	}

	out := filepath.Join(t.TempDir(), "pulled.db")
	version, err := PullDatabase(cfg, out, "")
	if err != nil {
		t.Fatalf("PullDatabase() error = %v", err)
	}
	if version != res.Snapshot.ID {
		t.Errorf("pulled version = %d, want %d", version, res.Snapshot.ID)
	}

	pulled, err := database.NewSQLiteDatabase(out)
	if err != nil {
		t.Fatal(err)
	}
	defer pulled.Close()
	nodes, err := pulled.ListNodes(res.Snapshot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Errorf("pulled snapshot has %d nodes, want 2", len(nodes))
	}
}

func TestIndexApp_PublishedCopyIsEncrypted(t *testing.T) {
	cfg := testConfig(t, false)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	v := testutil.NewTestVault()
	a.vault = v
	a.encryptor = testutil.NewTestEncryptor()

	res, err := a.Index([]string{root}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	version, err := v.GetMetadataVersion(cfg.HostID, MetadataName)
	if err != nil {
		t.Fatal(err)
	}
	if version != res.Snapshot.ID {
		t.Errorf("version = %d, want %d", version, res.Snapshot.ID)
	}

	var buf bytes.Buffer
	if err := v.GetMetadata(cfg.HostID, MetadataName, &buf); err != nil {
		t.Fatal(err)
	}
	if bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3")) {
		t.Error("published copy is a plain SQLite file")
	}

	dc, err := a.encryptor.Unlock("")
	if err != nil {
		t.Fatal(err)
	}
	var plain bytes.Buffer
	if err := dc.Decrypt(&buf, &plain); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.HasPrefix(plain.Bytes(), []byte("SQLite format 3")) {
		t.Error("decrypted copy is not a SQLite database")
	}
}

func TestIndexApp_ReadOnlyCommandDoesNotPublish(t *testing.T) {
	cfg := testConfig(t, true)

	a := newTestApp(t, cfg, "history")
	if _, err := a.GetHistory(10); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if got := publishedVersion(t, cfg); got != 0 {
		t.Errorf("published version = %d, want 0", got)
	}
}

func TestIndexApp_RefusesWhenBehindRemote(t *testing.T) {
	cfg := testConfig(t, true)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "index")
	if _, err := a.Index([]string{root}, false); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	// Losing the local database leaves the published copy ahead.
	if err := os.Remove(database.DatabasePath(cfg.Database, cfg.HostID)); err != nil {
		t.Fatal(err)
	}

	_, err := newIndexApp(cfg, "index", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "behind remote") {
		t.Fatalf("newIndexApp() error = %v, want behind remote error", err)
	}
}

func TestIndexApp_VaultNeedsKeys(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.Encryption = config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(cfg.BaseDir, "keys", "missing.pub"),
		PrivateKeyPath: filepath.Join(cfg.BaseDir, "keys", "missing.key"),
	}

	if _, err := newIndexApp(cfg, "index", &bytes.Buffer{}); err == nil {
		t.Fatal("newIndexApp() error = nil, want error for missing keys")
	}
}

func TestIndexApp_WatchStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, true)
	root := sampleTree(t)

	a := newTestApp(t, cfg, "watch")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := a.Watch(ctx, []string{root})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if res.Snapshot.Status != model.SnapshotStopped {
		t.Errorf("Status = %q, want %q", res.Snapshot.Status, model.SnapshotStopped)
	}
	if res.Baseline != 2 {
		t.Errorf("Baseline = %d, want 2", res.Baseline)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if got := publishedVersion(t, cfg); got != res.Snapshot.ID {
		t.Errorf("published version = %d, want %d", got, res.Snapshot.ID)
	}
}

func TestIndexApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.HostID = ""

	if _, err := newIndexApp(cfg, "index", &bytes.Buffer{}); err == nil {
		t.Fatal("newIndexApp() error = nil, want error for missing host_id")
	}
}

func TestPullDatabase_Errors(t *testing.T) {
	t.Run("no vault", func(t *testing.T) {
		cfg := testConfig(t, false)
		if _, err := PullDatabase(cfg, filepath.Join(t.TempDir(), "out.db"), ""); err == nil {
			t.Fatal("PullDatabase() error = nil, want error")
		}
	})

	t.Run("nothing published", func(t *testing.T) {
		cfg := testConfig(t, true)
		if _, err := PullDatabase(cfg, filepath.Join(t.TempDir(), "out.db"), ""); err == nil {
			t.Fatal("PullDatabase() error = nil, want error")
		}
	})

	t.Run("output exists", func(t *testing.T) {
		cfg := testConfig(t, true)
		a := newTestApp(t, cfg, "index")
		if _, err := a.Index([]string{sampleTree(t)}, true); err != nil {
			t.Fatal(err)
		}
		if err := a.Close(); err != nil {
			t.Fatal(err)
		}

		out := filepath.Join(t.TempDir(), "out.db")
		if err := os.WriteFile(out, []byte("keep"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := PullDatabase(cfg, out, ""); err == nil {
			t.Fatal("PullDatabase() error = nil, want error for existing output")
		}
		data, _ := os.ReadFile(out)
		if string(data) != "keep" {
			t.Error("existing output file was modified")
		}
	})
}
