package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/nothing010101/pfp/core"
)

type sqliteStore struct {
	db         *sql.DB
	maxExports int
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (id TEXT PRIMARY KEY, data BLOB);`,
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		uri TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS assets_category ON assets (category, created_at);`,
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS exports (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
}

// NewStore opens (and migrates) a SQLite database.
func NewStore(dataSourceName string, maxExports int) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	// One connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			log.Fatalf("failed to create schema: %v", err)
		}
	}

	if maxExports <= 0 {
		maxExports = core.DefaultMaxExports
	}
	return &sqliteStore{db: db, maxExports: maxExports}
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM documents WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.Errorf(core.CodeNotFound, "document with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, core.Wrap(core.CodePersistence, err, "failed to read document")
	}
	log.Info("Document retrieved successfully")
	return &core.Document{Data: *bytes.NewBuffer(data)}, nil
}

func (s *sqliteStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	data := document.Data.Bytes()
	log := logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(data),
	})

	if _, err := s.db.ExecContext(ctx, "INSERT INTO documents (id, data) VALUES (?, ?)", id, data); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", core.Wrap(core.CodePersistence, err, "failed to write document")
	}
	log.Info("Document created successfully")
	return id, nil
}

func (s *sqliteStore) ListAssets(ctx context.Context, category string) ([]core.Asset, error) {
	log := logrus.WithField("category", category)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, category, uri, created_at FROM assets WHERE category = ? ORDER BY created_at ASC, id ASC",
		category)
	if err != nil {
		log.WithError(err).Warn("Failed to list assets, listing as empty")
		return []core.Asset{}, nil
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close asset rows")
		}
	}()

	return scanAssets(log, rows), nil
}

type assetRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanAssets reads what it can. Bad rows are skipped and an interrupted
// listing keeps the rows read so far.
func scanAssets(log *logrus.Entry, rows assetRows) []core.Asset {
	assets := []core.Asset{}
	for rows.Next() {
		var (
			a       core.Asset
			created int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Category, &a.URI, &created); err != nil {
			log.WithError(err).Warn("Failed to scan asset, skipping")
			continue
		}
		a.CreatedAt = time.UnixMilli(created)
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).WithField("listed", len(assets)).Warn("Asset listing interrupted, returning partial list")
	}
	return assets
}

func (s *sqliteStore) SaveAsset(ctx context.Context, asset *core.Asset) error {
	if !core.ValidCategory(asset.Category) {
		return core.Errorf(core.CodeValidation, "unknown category %q", asset.Category)
	}
	if asset.ID == "" {
		asset.ID = ulid.Make().String()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	log := logrus.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"category": asset.Category,
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO assets (id, name, category, uri, created_at) VALUES (?, ?, ?, ?, ?)",
		asset.ID, asset.Name, asset.Category, asset.URI, asset.CreatedAt.UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to save asset")
		return core.Wrap(core.CodePersistence, err, "failed to save asset")
	}
	log.Info("Asset saved successfully")
	return nil
}

func (s *sqliteStore) TouchWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO workspaces (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = ?",
		workspaceID, now, now)
	return err
}

func (s *sqliteStore) ListWorkspaces(ctx context.Context) ([]core.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM workspaces ORDER BY last_active DESC, id ASC")
	if err != nil {
		return nil, core.Wrap(core.CodePersistence, err, "failed to list workspaces")
	}
	defer rows.Close()

	workspaces := []core.Workspace{}
	for rows.Next() {
		var w core.Workspace
		if err := rows.Scan(&w.ID, &w.LastActive); err != nil {
			return nil, core.Wrap(core.CodePersistence, err, "failed to scan workspace")
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

func (s *sqliteStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", workspaceID)
	return err
}

// SaveExport stores a new export, first deleting the oldest ones of the
// workspace while it is at capacity.
func (s *sqliteStore) SaveExport(ctx context.Context, export *core.Export) (string, error) {
	id := ulid.Make().String()
	createdAt := export.CreatedAt
	if createdAt == 0 {
		createdAt = int64(ulid.Now())
	}

	log := logrus.WithFields(logrus.Fields{
		"export_id":    id,
		"workspace_id": export.WorkspaceID,
		"data_length":  len(export.Data),
	})

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exports WHERE workspace_id = ?", export.WorkspaceID).Scan(&count)
	if err != nil {
		log.WithError(err).Error("Failed to count exports")
		return "", core.Wrap(core.CodePersistence, err, "failed to count exports")
	}

	for ; count >= s.maxExports; count-- {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM exports WHERE id = (SELECT id FROM exports WHERE workspace_id = ? ORDER BY created_at ASC, id ASC LIMIT 1)",
			export.WorkspaceID)
		if err != nil {
			log.WithError(err).Error("Failed to delete oldest export")
			break
		}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO exports (id, workspace_id, width, height, created_at, data) VALUES (?, ?, ?, ?, ?, ?)",
		id, export.WorkspaceID, export.Width, export.Height, createdAt, export.Data)
	if err != nil {
		log.WithError(err).Error("Failed to save export")
		return "", core.Wrap(core.CodePersistence, err, "failed to save export")
	}

	log.Info("Export saved successfully")
	return id, nil
}

func (s *sqliteStore) ListExports(ctx context.Context, workspaceID string) ([]core.Export, error) {
	log := logrus.WithField("workspace_id", workspaceID)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, workspace_id, width, height, created_at FROM exports WHERE workspace_id = ? ORDER BY created_at DESC, id DESC",
		workspaceID)
	if err != nil {
		log.WithError(err).Error("Failed to list exports")
		return nil, core.Wrap(core.CodePersistence, err, "failed to list exports")
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close export rows")
		}
	}()

	exports := []core.Export{}
	for rows.Next() {
		var e core.Export
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Width, &e.Height, &e.CreatedAt); err != nil {
			log.WithError(err).Error("Failed to scan export")
			continue
		}
		exports = append(exports, e)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Failed to list exports")
		return nil, core.Wrap(core.CodePersistence, err, "failed to list exports")
	}
	return exports, nil
}

func (s *sqliteStore) GetExport(ctx context.Context, id string) (*core.Export, error) {
	log := logrus.WithField("export_id", id)

	var e core.Export
	err := s.db.QueryRowContext(ctx,
		"SELECT id, workspace_id, width, height, created_at, data FROM exports WHERE id = ?",
		id).Scan(&e.ID, &e.WorkspaceID, &e.Width, &e.Height, &e.CreatedAt, &e.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "export not found").Warn("Export with specified ID not found")
			return nil, core.Errorf(core.CodeNotFound, "export with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve export")
		return nil, core.Wrap(core.CodePersistence, err, "failed to read export")
	}

	log.Info("Export retrieved successfully")
	return &e, nil
}

func (s *sqliteStore) DeleteExport(ctx context.Context, id string) error {
	log := logrus.WithField("export_id", id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM exports WHERE id = ?", id)
	if err != nil {
		log.WithError(err).Error("Failed to delete export")
		return core.Wrap(core.CodePersistence, err, "failed to delete export")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.Errorf(core.CodeNotFound, "export with id %s not found", id)
	}

	log.Info("Export deleted successfully")
	return nil
}
