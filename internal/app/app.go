package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"fsindex/internal/config"
	"fsindex/internal/database"
	"fsindex/internal/encryption"
	"fsindex/internal/fs"
	"fsindex/internal/indexer"
	"fsindex/internal/listener"
	"fsindex/internal/model"
	"fsindex/internal/vault"
)

// MetadataName is the vault item under which a host's index database is published.
const MetadataName = "index.db"

// IndexApp is the application layer between the CLI and IndexService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and publishes the database on Close.
type IndexApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     indexer.Vault // nil when no vault is configured
	encryptor indexer.Encryptor
	fsys      indexer.Filesystem
	logger    indexer.Logger
	traverser *indexer.Traverser
	service   *indexer.IndexService
	run       *Run
	logCloser io.Closer
}

// NewIndexApp creates a fully wired IndexApp from the given config.
// command identifies the CLI command being run (e.g. "index", "watch").
// The caller must call Close when done.
func NewIndexApp(cfg *config.Config, command string) (*IndexApp, error) {
	return newIndexApp(cfg, command, os.Stderr)
}

func newIndexApp(cfg *config.Config, command string, stderr io.Writer) (*IndexApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var v indexer.Vault
	if len(cfg.Vaults) > 0 {
		var err error
		v, err = vault.NewVaultFromConfig(cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	// A newer published copy means another run wrote to this host's index
	// from a database this machine does not have.
	if v != nil {
		remoteVersion, err := v.GetMetadataVersion(cfg.HostID, MetadataName)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking remote metadata version: %w", err)
		}

		localMax, err := db.MaxSnapshotID()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking local metadata version: %w", err)
		}

		if remoteVersion > localMax {
			db.Close()
			return nil, fmt.Errorf("local database is behind remote (local=%d, remote=%d): pull the published database or re-initialize", localMax, remoteVersion)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if v != nil && !enc.IsConfigured() {
		db.Close()
		return nil, fmt.Errorf("encryption keys not found: run 'fsindex keys init' first")
	}

	run := NewRun(command, time.Now())
	slogger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, run.ID, stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fsys := fs.NewOSFilesystem()
	traverser := indexer.NewTraverser(fsys, logger, indexer.RealClock{})
	svc := indexer.NewIndexService(db, traverser, logger, indexer.RealClock{}, indexer.UUIDGenerator{})

	logger.Debug("app started", "command", command, "database", db.Path())

	return &IndexApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		fsys:      fsys,
		logger:    logger,
		traverser: traverser,
		service:   svc,
		run:       run,
		logCloser: logCloser,
	}, nil
}

// resolveRoots turns raw command-line paths into absolute traversal roots.
func resolveRoots(rawPaths []string) ([]indexer.AbsPath, error) {
	if len(rawPaths) == 0 {
		return nil, fmt.Errorf("no directories given")
	}
	roots := make([]indexer.AbsPath, 0, len(rawPaths))
	for _, raw := range rawPaths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", raw, err)
		}
		root, err := indexer.NewAbsPath(abs)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, nil
}

// Index indexes the given directories into a new snapshot. Unless force is
// set, the result carries a comparison with the previous snapshot of the
// same directories.
func (a *IndexApp) Index(rawPaths []string, force bool) (*indexer.IndexResult, error) {
	roots, err := resolveRoots(rawPaths)
	if err != nil {
		return nil, err
	}
	result, err := a.service.IndexRoots(roots, force)
	if err != nil {
		return nil, err
	}
	a.run.Record(result.Snapshot.ID)
	return result, nil
}

// Watch records a baseline of the given directories and then their changes
// until ctx is cancelled.
func (a *IndexApp) Watch(ctx context.Context, rawPaths []string) (*listener.Result, error) {
	roots, err := resolveRoots(rawPaths)
	if err != nil {
		return nil, err
	}
	l := listener.New(a.db, a.fsys, a.traverser, a.logger, indexer.UUIDGenerator{})
	result, err := l.Run(ctx, roots)
	if err != nil {
		return nil, err
	}
	a.run.Record(result.Snapshot.ID)
	return result, nil
}

// GetHistory returns the most recent snapshots.
func (a *IndexApp) GetHistory(limit int) ([]*model.Snapshot, error) {
	return a.service.GetHistory(limit)
}

// GetNodeHistory resolves the given path and returns its stored records.
// The path does not need to exist any more.
func (a *IndexApp) GetNodeHistory(rawPath string) ([]*model.NodeVersion, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	p, err := indexer.NewAbsPath(abs)
	if err != nil {
		return nil, err
	}
	return a.service.GetNodeHistory(p)
}

// Close closes all resources. If the run wrote a snapshot and a vault is
// configured, a copy of the database is encrypted and published first,
// versioned by the snapshot ID.
func (a *IndexApp) Close() error {
	var firstErr error

	if a.run.Persisted() && a.vault != nil {
		if err := a.publish(); err != nil {
			a.logger.Error("publishing database failed", "error", err)
			firstErr = err
		} else {
			a.logger.Info("database published", "version", a.run.SnapshotID)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}

	return firstErr
}

// publish copies the database with VACUUM INTO, encrypts the copy and
// uploads it to the vault.
func (a *IndexApp) publish() error {
	tmpDir, err := os.MkdirTemp("", "fsindex-publish-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for db copy: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "index.db")
	if err := a.db.BackupTo(plainPath); err != nil {
		return err
	}

	encPath := filepath.Join(tmpDir, "index.db.enc")
	if err := encryptFile(a.encryptor, plainPath, encPath); err != nil {
		return err
	}

	f, err := os.Open(encPath)
	if err != nil {
		return fmt.Errorf("opening encrypted db copy: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat encrypted db copy: %w", err)
	}

	if err := a.vault.PutMetadata(a.cfg.HostID, MetadataName, f, info.Size(), a.run.SnapshotID); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}
	return nil
}

func encryptFile(enc indexer.Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening db copy: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted db copy: %w", err)
	}

	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting db copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("writing encrypted db copy: %w", err)
	}
	return nil
}
