package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
)

const (
	documentsPrefix = "documents/"
	workspacesKey   = "workspaces.json"
	exportIndexKey  = "exports/index.json"
)

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Store struct {
	s3Client   s3API
	bucket     string
	maxExports int

	// guards read-modify-write of the JSON index objects
	mu sync.Mutex
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string, maxExports int) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName, maxExports)
}

func newStore(client s3API, bucketName string, maxExports int) *s3Store {
	if maxExports <= 0 {
		maxExports = core.DefaultMaxExports
	}
	return &s3Store{s3Client: client, bucket: bucketName, maxExports: maxExports}
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

func (s *s3Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *s3Store) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	data, err := s.get(ctx, documentsPrefix+id)
	if err != nil {
		if isNoSuchKey(err) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.Errorf(core.CodeNotFound, "document with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, core.Wrap(core.CodePersistence, err, fmt.Sprintf("failed to get document with id %s", id))
	}

	log.Info("Document retrieved successfully")
	return &core.Document{Data: *bytes.NewBuffer(data)}, nil
}

func (s *s3Store) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	log := logrus.WithField("document_id", id)

	if err := s.put(ctx, documentsPrefix+id, "application/json", document.Data.Bytes()); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", core.Wrap(core.CodePersistence, err, "failed to upload document")
	}
	log.Info("Document created successfully")
	return id, nil
}

func assetsKey(category string) string {
	return "assets/" + category + ".json"
}

// ListAssets reads the category object. A missing or unreadable object lists
// as empty.
func (s *s3Store) ListAssets(ctx context.Context, category string) ([]core.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAssets(ctx, category), nil
}

func (s *s3Store) readAssets(ctx context.Context, category string) []core.Asset {
	log := logrus.WithField("category", category)
	if !core.ValidCategory(category) {
		return []core.Asset{}
	}

	data, err := s.get(ctx, assetsKey(category))
	if err != nil {
		if !isNoSuchKey(err) {
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

func (s *s3Store) SaveAsset(ctx context.Context, asset *core.Asset) error {
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

	data, err := json.Marshal(append(s.readAssets(ctx, asset.Category), *asset))
	if err != nil {
		return core.Wrap(core.CodePersistence, err, "failed to encode asset catalog")
	}
	if err := s.put(ctx, assetsKey(asset.Category), "application/json", data); err != nil {
		log.WithError(err).Error("Failed to save asset")
		return core.Wrap(core.CodePersistence, err, "failed to save asset")
	}
	log.Info("Asset saved successfully")
	return nil
}

func (s *s3Store) readWorkspaces(ctx context.Context) (map[string]int64, error) {
	workspaces := make(map[string]int64)
	data, err := s.get(ctx, workspacesKey)
	if err != nil {
		if isNoSuchKey(err) {
			return workspaces, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &workspaces); err != nil {
		logrus.WithError(err).Warn("Corrupt workspace registry, starting empty")
		return make(map[string]int64), nil
	}
	return workspaces, nil
}

func (s *s3Store) writeWorkspaces(ctx context.Context, workspaces map[string]int64) error {
	data, err := json.Marshal(workspaces)
	if err != nil {
		return err
	}
	return s.put(ctx, workspacesKey, "application/json", data)
}

func (s *s3Store) TouchWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	workspaces, err := s.readWorkspaces(ctx)
	if err != nil {
		return err
	}
	workspaces[workspaceID] = time.Now().UnixMilli()
	return s.writeWorkspaces(ctx, workspaces)
}

func (s *s3Store) ListWorkspaces(ctx context.Context) ([]core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workspaces, err := s.readWorkspaces(ctx)
	if err != nil {
		return nil, core.Wrap(core.CodePersistence, err, "failed to list workspaces")
	}
	out := make([]core.Workspace, 0, len(workspaces))
	for id, last := range workspaces {
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

func (s *s3Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	workspaces, err := s.readWorkspaces(ctx)
	if err != nil {
		return err
	}
	delete(workspaces, workspaceID)
	return s.writeWorkspaces(ctx, workspaces)
}

func exportKey(id string) string {
	return "exports/" + id + ".png"
}

// readIndex returns the metadata of every stored export, newest first.
func (s *s3Store) readIndex(ctx context.Context) ([]core.Export, error) {
	data, err := s.get(ctx, exportIndexKey)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, err
	}
	var index []core.Export
	if err := json.Unmarshal(data, &index); err != nil {
		logrus.WithError(err).Warn("Corrupt export index, starting empty")
		return nil, nil
	}
	return index, nil
}

func (s *s3Store) writeIndex(ctx context.Context, index []core.Export) error {
	sort.Slice(index, func(i, j int) bool {
		if index[i].CreatedAt == index[j].CreatedAt {
			return index[i].ID > index[j].ID
		}
		return index[i].CreatedAt > index[j].CreatedAt
	})
	data, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return s.put(ctx, exportIndexKey, "application/json", data)
}

func (s *s3Store) SaveExport(ctx context.Context, export *core.Export) (string, error) {
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"export_id":    id,
		"workspace_id": export.WorkspaceID,
		"data_length":  len(export.Data),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to read export index")
		return "", core.Wrap(core.CodePersistence, err, "failed to read export index")
	}

	if err := s.put(ctx, exportKey(id), "image/png", export.Data); err != nil {
		log.WithError(err).Error("Failed to upload export")
		return "", core.Wrap(core.CodePersistence, err, "failed to upload export")
	}

	meta := *export
	meta.ID = id
	meta.Data = nil
	if meta.CreatedAt == 0 {
		meta.CreatedAt = int64(ulid.Now())
	}

	// index is newest first; walk from the end to drop the oldest.
	kept := 0
	for _, e := range index {
		if e.WorkspaceID == export.WorkspaceID {
			kept++
		}
	}
	for i := len(index) - 1; i >= 0 && kept >= s.maxExports; i-- {
		if index[i].WorkspaceID != export.WorkspaceID {
			continue
		}
		if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(exportKey(index[i].ID)),
		}); err != nil {
			log.WithError(err).Error("Failed to delete oldest export")
		}
		index = append(index[:i], index[i+1:]...)
		kept--
	}

	if err := s.writeIndex(ctx, append(index, meta)); err != nil {
		log.WithError(err).Error("Failed to write export index")
		return "", core.Wrap(core.CodePersistence, err, "failed to write export index")
	}

	log.Info("Export saved successfully")
	return id, nil
}

func (s *s3Store) ListExports(ctx context.Context, workspaceID string) ([]core.Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex(ctx)
	if err != nil {
		return nil, core.Wrap(core.CodePersistence, err, "failed to read export index")
	}
	exports := []core.Export{}
	for _, e := range index {
		if e.WorkspaceID == workspaceID {
			exports = append(exports, e)
		}
	}
	return exports, nil
}

func (s *s3Store) GetExport(ctx context.Context, id string) (*core.Export, error) {
	log := logrus.WithField("export_id", id)

	s.mu.Lock()
	index, err := s.readIndex(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, core.Wrap(core.CodePersistence, err, "failed to read export index")
	}

	for _, e := range index {
		if e.ID != id {
			continue
		}
		data, err := s.get(ctx, exportKey(id))
		if err != nil {
			if isNoSuchKey(err) {
				break
			}
			log.WithError(err).Error("Failed to retrieve export")
			return nil, core.Wrap(core.CodePersistence, err, "failed to get export")
		}
		e.Data = data
		log.Info("Export retrieved successfully")
		return &e, nil
	}

	log.WithField("error", "export not found").Warn("Export with specified ID not found")
	return nil, core.Errorf(core.CodeNotFound, "export with id %s not found", id)
}

func (s *s3Store) DeleteExport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex(ctx)
	if err != nil {
		return core.Wrap(core.CodePersistence, err, "failed to read export index")
	}
	for i, e := range index {
		if e.ID != id {
			continue
		}
		if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(exportKey(id)),
		}); err != nil {
			return core.Wrap(core.CodePersistence, err, fmt.Sprintf("failed to delete export %s", id))
		}
		if err := s.writeIndex(ctx, append(index[:i], index[i+1:]...)); err != nil {
			return core.Wrap(core.CodePersistence, err, "failed to write export index")
		}
		logrus.WithField("export_id", id).Info("Export deleted successfully")
		return nil
	}
	return core.Errorf(core.CodeNotFound, "export with id %s not found", id)
}
