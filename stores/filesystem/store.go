package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
)

const (
	documentsDir   = "documents"
	exportsDir     = "exports"
	workspacesFile = "workspaces.json"
)

type fsStore struct {
	mu         sync.Mutex
	basePath   string
	maxExports int
}

// exportRecord is the on-disk form of an export; unlike core.Export it
// carries the image.
type exportRecord struct {
	core.Export
	Data []byte `json:"data"`
}

// NewStore creates a filesystem-based store rooted at basePath.
func NewStore(basePath string, maxExports int) *fsStore {
	for _, dir := range []string{basePath, filepath.Join(basePath, documentsDir), filepath.Join(basePath, exportsDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	if maxExports <= 0 {
		maxExports = core.DefaultMaxExports
	}
	return &fsStore{basePath: basePath, maxExports: maxExports}
}

// validID rejects ids that would resolve outside their directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\:`) && filepath.Base(id) == id
}

func (s *fsStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	if !validID(id) {
		log.WithField("error", "invalid id").Warn("Rejected document ID")
		return nil, core.Errorf(core.CodeNotFound, "document with id %s not found", id)
	}

	filePath := filepath.Join(s.basePath, documentsDir, id)
	log.WithField("file_path", filePath).Debug("Retrieving document by ID")
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.Errorf(core.CodeNotFound, "document with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, core.Wrap(core.CodePersistence, err, "failed to read document")
	}

	log.Info("Document retrieved successfully")
	return &core.Document{Data: *bytes.NewBuffer(data)}, nil
}

func (s *fsStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	filePath := filepath.Join(s.basePath, documentsDir, id)
	log := logrus.WithFields(logrus.Fields{
		"document_id": id,
		"file_path":   filePath,
	})

	if err := os.WriteFile(filePath, document.Data.Bytes(), 0644); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", core.Wrap(core.CodePersistence, err, "failed to write document")
	}

	log.Info("Document created successfully")
	return id, nil
}

func (s *fsStore) assetsPath(category string) string {
	return filepath.Join(s.basePath, "assets_"+category+".json")
}

// ListAssets reads the category file. A missing or unreadable file lists as
// empty.
func (s *fsStore) ListAssets(ctx context.Context, category string) ([]core.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAssets(category), nil
}

func (s *fsStore) readAssets(category string) []core.Asset {
	log := logrus.WithField("category", category)
	if !core.ValidCategory(category) {
		return []core.Asset{}
	}

	data, err := os.ReadFile(s.assetsPath(category))
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to read asset catalog, listing as empty")
		}
		return []core.Asset{}
	}

	var assets []core.Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		log.WithError(err).Warn("Corrupt asset catalog, listing as empty")
		return []core.Asset{}
	}
	return assets
}

func (s *fsStore) SaveAsset(ctx context.Context, asset *core.Asset) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	assets := append(s.readAssets(asset.Category), *asset)
	data, err := json.Marshal(assets)
	if err != nil {
		return core.Wrap(core.CodePersistence, err, "failed to encode asset catalog")
	}
	if err := os.WriteFile(s.assetsPath(asset.Category), data, 0644); err != nil {
		log.WithError(err).Error("Failed to save asset")
		return core.Wrap(core.CodePersistence, err, "failed to write asset catalog")
	}

	log.Info("Asset saved successfully")
	return nil
}

func (s *fsStore) readWorkspaces() map[string]int64 {
	workspaces := make(map[string]int64)
	data, err := os.ReadFile(filepath.Join(s.basePath, workspacesFile))
	if err != nil {
		return workspaces
	}
	if err := json.Unmarshal(data, &workspaces); err != nil {
		logrus.WithError(err).Warn("Corrupt workspace registry, starting empty")
		return make(map[string]int64)
	}
	return workspaces
}

func (s *fsStore) writeWorkspaces(workspaces map[string]int64) error {
	data, err := json.Marshal(workspaces)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.basePath, workspacesFile), data, 0644)
}

func (s *fsStore) TouchWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	workspaces := s.readWorkspaces()
	workspaces[workspaceID] = time.Now().UnixMilli()
	return s.writeWorkspaces(workspaces)
}

func (s *fsStore) ListWorkspaces(ctx context.Context) ([]core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Workspace, 0)
	for id, last := range s.readWorkspaces() {
		out = append(out, core.Workspace{ID: id, LastActive: last})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive == out[j].LastActive {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActive > out[j].LastActive
	})
	return out, nil
}

func (s *fsStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	workspaces := s.readWorkspaces()
	delete(workspaces, workspaceID)
	return s.writeWorkspaces(workspaces)
}

func (s *fsStore) exportPath(id string) string {
	return filepath.Join(s.basePath, exportsDir, id+".json")
}

func (s *fsStore) SaveExport(ctx context.Context, export *core.Export) (string, error) {
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"export_id":    id,
		"workspace_id": export.WorkspaceID,
		"data_length":  len(export.Data),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readExports(export.WorkspaceID)
	if err != nil {
		log.WithError(err).Error("Failed to count exports")
		return "", core.Wrap(core.CodePersistence, err, "failed to list exports")
	}
	for len(existing) >= s.maxExports {
		oldest := existing[len(existing)-1]
		if err := os.Remove(s.exportPath(oldest.ID)); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Error("Failed to delete oldest export")
		}
		existing = existing[:len(existing)-1]
	}

	rec := exportRecord{Export: *export, Data: export.Data}
	rec.ID = id
	if rec.CreatedAt == 0 {
		rec.CreatedAt = int64(ulid.Now())
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", core.Wrap(core.CodePersistence, err, "failed to encode export")
	}
	if err := os.WriteFile(s.exportPath(id), data, 0644); err != nil {
		log.WithError(err).Error("Failed to save export")
		return "", core.Wrap(core.CodePersistence, err, "failed to write export")
	}

	log.Info("Export saved successfully")
	return id, nil
}

// readExports loads every export of a workspace, newest first.
func (s *fsStore) readExports(workspaceID string) ([]exportRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, exportsDir))
	if err != nil {
		return nil, err
	}

	var out []exportRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, exportsDir, entry.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read export file %s, skipping", entry.Name())
			continue
		}
		var rec exportRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logrus.WithError(err).Warnf("Failed to unmarshal export file %s, skipping", entry.Name())
			continue
		}
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

func (s *fsStore) ListExports(ctx context.Context, workspaceID string) ([]core.Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readExports(workspaceID)
	if err != nil {
		return nil, core.Wrap(core.CodePersistence, err, "failed to list exports")
	}
	exports := make([]core.Export, len(recs))
	for i, rec := range recs {
		exports[i] = rec.Export
	}
	return exports, nil
}

func (s *fsStore) GetExport(ctx context.Context, id string) (*core.Export, error) {
	log := logrus.WithField("export_id", id)
	if !validID(id) {
		return nil, core.Errorf(core.CodeNotFound, "export with id %s not found", id)
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.exportPath(id))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "export not found").Warn("Export with specified ID not found")
			return nil, core.Errorf(core.CodeNotFound, "export with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve export")
		return nil, core.Wrap(core.CodePersistence, err, "failed to read export")
	}

	var rec exportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.WithError(err).Error("Failed to unmarshal export")
		return nil, core.Wrap(core.CodePersistence, err, "corrupt export")
	}
	e := rec.Export
	e.Data = rec.Data
	log.Info("Export retrieved successfully")
	return &e, nil
}

func (s *fsStore) DeleteExport(ctx context.Context, id string) error {
	if !validID(id) {
		return core.Errorf(core.CodeNotFound, "export with id %s not found", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.exportPath(id)); err != nil {
		if os.IsNotExist(err) {
			return core.Errorf(core.CodeNotFound, "export with id %s not found", id)
		}
		return core.Wrap(core.CodePersistence, err, "failed to delete export")
	}
	logrus.WithField("export_id", id).Info("Export deleted successfully")
	return nil
}
