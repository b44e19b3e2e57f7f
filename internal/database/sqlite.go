package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fsindex/internal/database/migrations"
	"fsindex/internal/indexer"
	"fsindex/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// rootsSeparator joins snapshot roots into a single column value.
// Newlines cannot appear in a validated root in practice.
const rootsSeparator = "\n"

// SQLiteDatabase implements indexer.Store using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// A full index run inserts one row per filesystem entry.
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL journal: %w", err)
		}
	}

	return db, nil
}

// Snapshot operations

func (s *SQLiteDatabase) CreateSnapshot(kind string, uuid string, roots []string) (*model.Snapshot, error) {
	startedAt := time.Now().UTC()
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO snapshots (uuid, kind, roots, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		uuid, kind, strings.Join(roots, rootsSeparator), startedAt, model.SnapshotRunning)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot id: %w", err)
	}
	return &model.Snapshot{
		ID:        id,
		UUID:      uuid,
		Kind:      kind,
		Roots:     append([]string(nil), roots...),
		StartedAt: startedAt,
		Status:    model.SnapshotRunning,
	}, nil
}

func (s *SQLiteDatabase) FinishSnapshot(snapshotID int64, status string, nodeCount int64) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE snapshots SET finished_at = ?, status = ?, node_count = ? WHERE id = ?`,
		time.Now().UTC(), status, nodeCount, snapshotID)
	if err != nil {
		return fmt.Errorf("finishing snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing snapshot: no snapshot with id %d", snapshotID)
	}
	return nil
}

func (s *SQLiteDatabase) FindLatestSnapshot(kind string, roots []string, beforeID int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE kind = ? AND roots = ? AND status = ? AND id < ?
		 ORDER BY id DESC LIMIT 1`,
		kind, strings.Join(roots, rootsSeparator), model.SnapshotSuccess, beforeID)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding latest snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *SQLiteDatabase) ListSnapshots(limit int) ([]*model.Snapshot, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT `+snapshotColumns+` FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []*model.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		result = append(result, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxSnapshotID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(), `SELECT COALESCE(MAX(id), 0) FROM snapshots`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max snapshot ID: %w", err)
	}
	return id, nil
}

// Node operations

func (s *SQLiteDatabase) InsertNodes(snapshotID int64, nodes []*model.FsNode) ([]int64, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fs_nodes (
			snapshot_id, node_type, name, size, uid, gid, permissions,
			creation_date, modified_date, path, parent_path, sha1_checksum,
			links_to, inode, nlinks, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		parentID := sql.NullInt64{Int64: n.ParentID, Valid: n.ParentID != 0}
		res, err := stmt.ExecContext(ctx,
			snapshotID, n.NodeType.Code(), n.Name, n.Size, n.UID, n.GID, n.Permissions,
			n.CreationDate, n.ModifiedDate, n.Path, n.ParentPath, n.SHA1Checksum,
			n.LinksTo, n.Inode, n.NLinks, parentID)
		if err != nil {
			return nil, fmt.Errorf("inserting node %s: %w", n.Path, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading node id for %s: %w", n.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

func (s *SQLiteDatabase) RepairParentIDs(snapshotID int64) (int64, error) {
	// When a path was recorded more than once (listen snapshots), the child
	// is linked to the most recent record of its parent.
	res, err := s.db.ExecContext(context.Background(), `
		UPDATE fs_nodes
		SET parent_id = (
			SELECT p.id FROM fs_nodes p
			WHERE p.snapshot_id = fs_nodes.snapshot_id AND p.path = fs_nodes.parent_path
			ORDER BY p.id DESC LIMIT 1
		)
		WHERE snapshot_id = ? AND parent_id IS NULL AND parent_path != ''
		  AND EXISTS (
			SELECT 1 FROM fs_nodes p
			WHERE p.snapshot_id = fs_nodes.snapshot_id AND p.path = fs_nodes.parent_path
		  )`, snapshotID)
	if err != nil {
		return 0, fmt.Errorf("repairing parent ids: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting repaired parent ids: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) ListNodes(snapshotID int64) ([]*model.FsNode, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT `+nodeColumns+` FROM fs_nodes WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var result []*model.FsNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		result = append(result, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) FindNodeVersions(path string) ([]*model.NodeVersion, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT s.id, s.started_at, `+prefixed("n", nodeColumns)+`
		FROM fs_nodes n JOIN snapshots s ON s.id = n.snapshot_id
		WHERE n.path = ?
		ORDER BY n.id`, path)
	if err != nil {
		return nil, fmt.Errorf("finding node versions: %w", err)
	}
	defer rows.Close()

	var result []*model.NodeVersion
	for rows.Next() {
		var (
			v        model.NodeVersion
			node     model.FsNode
			code     int
			parentID sql.NullInt64
		)
		err := rows.Scan(&v.SnapshotID, &v.SnapshotStartedAt,
			&node.ID, &code, &node.Name, &node.Size, &node.UID, &node.GID, &node.Permissions,
			&node.CreationDate, &node.ModifiedDate, &node.Path, &node.ParentPath, &node.SHA1Checksum,
			&node.LinksTo, &node.Inode, &node.NLinks, &parentID)
		if err != nil {
			return nil, fmt.Errorf("scanning node version: %w", err)
		}
		if node.NodeType, err = model.NodeTypeFromCode(code); err != nil {
			return nil, err
		}
		node.ParentID = parentID.Int64
		v.Node = &node
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding node versions: %w", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies any pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const snapshotColumns = `id, uuid, kind, roots, started_at, finished_at, status, node_count`

const nodeColumns = `id, node_type, name, size, uid, gid, permissions, creation_date, modified_date,
	path, parent_path, sha1_checksum, links_to, inode, nlinks, parent_id`

// prefixed qualifies every column of a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*model.Snapshot, error) {
	var (
		snapshot   model.Snapshot
		roots      string
		finishedAt sql.NullTime
	)
	err := row.Scan(&snapshot.ID, &snapshot.UUID, &snapshot.Kind, &roots,
		&snapshot.StartedAt, &finishedAt, &snapshot.Status, &snapshot.NodeCount)
	if err != nil {
		return nil, err
	}
	if roots != "" {
		snapshot.Roots = strings.Split(roots, rootsSeparator)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		snapshot.FinishedAt = &t
	}
	return &snapshot, nil
}

func scanNode(row scanner) (*model.FsNode, error) {
	var (
		node     model.FsNode
		code     int
		parentID sql.NullInt64
	)
	err := row.Scan(&node.ID, &code, &node.Name, &node.Size, &node.UID, &node.GID, &node.Permissions,
		&node.CreationDate, &node.ModifiedDate, &node.Path, &node.ParentPath, &node.SHA1Checksum,
		&node.LinksTo, &node.Inode, &node.NLinks, &parentID)
	if err != nil {
		return nil, err
	}
	if node.NodeType, err = model.NodeTypeFromCode(code); err != nil {
		return nil, err
	}
	node.ParentID = parentID.Int64
	return &node, nil
}

// Compile-time check that SQLiteDatabase implements indexer.Store interface
var _ indexer.Store = (*SQLiteDatabase)(nil)
