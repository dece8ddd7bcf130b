package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
)

type memStore struct {
	mu         sync.RWMutex
	documents  map[string]core.Document
	assets     map[string][]core.Asset
	workspaces map[string]int64
	exports    map[string]core.Export
	maxExports int
}

// NewStore creates an in-memory store. Nothing survives a restart.
func NewStore(maxExports int) *memStore {
	if maxExports <= 0 {
		maxExports = core.DefaultMaxExports
	}
	return &memStore{
		documents:  make(map[string]core.Document),
		assets:     make(map[string][]core.Asset),
		workspaces: make(map[string]int64),
		exports:    make(map[string]core.Export),
		maxExports: maxExports,
	}
}

func (s *memStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.RLock()
	doc, ok := s.documents[id]
	s.mu.RUnlock()

	if ok {
		log.Info("Document retrieved successfully")
		return &doc, nil
	}

	log.WithField("error", "document not found").Warn("Document with specified ID not found")
	return nil, core.Errorf(core.CodeNotFound, "document with id %s not found", id)
}

func (s *memStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()

	s.mu.Lock()
	s.documents[id] = *document
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(document.Data.Bytes()),
	}).Info("Document created successfully")

	return id, nil
}

func (s *memStore) ListAssets(ctx context.Context, category string) ([]core.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]core.Asset, len(s.assets[category]))
	copy(assets, s.assets[category])
	return assets, nil
}

func (s *memStore) SaveAsset(ctx context.Context, asset *core.Asset) error {
	if !core.ValidCategory(asset.Category) {
		return core.Errorf(core.CodeValidation, "unknown category %q", asset.Category)
	}
	if asset.ID == "" {
		asset.ID = ulid.Make().String()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.assets[asset.Category] = append(s.assets[asset.Category], *asset)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"category": asset.Category,
	}).Info("Asset saved successfully")
	return nil
}

func (s *memStore) TouchWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}

	s.mu.Lock()
	s.workspaces[workspaceID] = time.Now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *memStore) ListWorkspaces(ctx context.Context) ([]core.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workspaces := make([]core.Workspace, 0, len(s.workspaces))
	for id, last := range s.workspaces {
		workspaces = append(workspaces, core.Workspace{ID: id, LastActive: last})
	}

	sort.Slice(workspaces, func(i, j int) bool {
		if workspaces[i].LastActive == workspaces[j].LastActive {
			return workspaces[i].ID < workspaces[j].ID
		}
		return workspaces[i].LastActive > workspaces[j].LastActive
	})

	return workspaces, nil
}

func (s *memStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.workspaces, workspaceID)
	return nil
}

func (s *memStore) SaveExport(ctx context.Context, export *core.Export) (string, error) {
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"export_id":    id,
		"workspace_id": export.WorkspaceID,
		"data_length":  len(export.Data),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.listExportsLocked(export.WorkspaceID)
	for len(existing) >= s.maxExports {
		oldest := existing[len(existing)-1]
		delete(s.exports, oldest.ID)
		existing = existing[:len(existing)-1]
	}

	e := *export
	e.ID = id
	if e.CreatedAt == 0 {
		e.CreatedAt = int64(ulid.Now())
	}
	e.Data = append([]byte(nil), export.Data...)
	s.exports[id] = e

	log.Info("Export saved successfully")
	return id, nil
}

func (s *memStore) ListExports(ctx context.Context, workspaceID string) ([]core.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exports := s.listExportsLocked(workspaceID)
	for i := range exports {
		exports[i].Data = nil
	}
	return exports, nil
}

// listExportsLocked returns the exports of a workspace, newest first.
func (s *memStore) listExportsLocked(workspaceID string) []core.Export {
	var exports []core.Export
	for _, e := range s.exports {
		if e.WorkspaceID == workspaceID {
			exports = append(exports, e)
		}
	}
	sort.Slice(exports, func(i, j int) bool {
		if exports[i].CreatedAt == exports[j].CreatedAt {
			return exports[i].ID > exports[j].ID
		}
		return exports[i].CreatedAt > exports[j].CreatedAt
	})
	return exports
}

func (s *memStore) GetExport(ctx context.Context, id string) (*core.Export, error) {
	log := logrus.WithField("export_id", id)

	s.mu.RLock()
	e, ok := s.exports[id]
	s.mu.RUnlock()

	if !ok {
		log.WithField("error", "export not found").Warn("Export with specified ID not found")
		return nil, core.Errorf(core.CodeNotFound, "export with id %s not found", id)
	}
	log.Info("Export retrieved successfully")
	return &e, nil
}

func (s *memStore) DeleteExport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exports[id]; !ok {
		return core.Errorf(core.CodeNotFound, "export with id %s not found", id)
	}
	delete(s.exports, id)
	logrus.WithField("export_id", id).Info("Export deleted successfully")
	return nil
}
