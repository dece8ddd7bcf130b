package core

import (
	"bytes"
	"context"
	"time"
)

// Asset categories offered by the palette.
const (
	CategoryHat         = "hat"
	CategoryHands       = "hands"
	CategoryHair        = "hair"
	CategoryAccessories = "accessories"
)

// Categories lists every asset category in palette order.
var Categories = []string{CategoryHat, CategoryHands, CategoryHair, CategoryAccessories}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type (
	// Asset is an immutable image resource a layer points at. URI is either a
	// data URI or an http(s) URL.
	Asset struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Category  string    `json:"category"`
		URI       string    `json:"uri"`
		CreatedAt time.Time `json:"createdAt,omitempty"`
	}

	// AssetCatalog stores uploaded assets keyed by category. A category whose
	// stored record is unreadable lists as empty.
	AssetCatalog interface {
		ListAssets(ctx context.Context, category string) ([]Asset, error)
		SaveAsset(ctx context.Context, asset *Asset) error
	}

	// Document is a saved composition, serialized as JSON.
	Document struct {
		Data bytes.Buffer
	}

	DocumentStore interface {
		FindID(ctx context.Context, id string) (*Document, error)
		Create(ctx context.Context, document *Document) (string, error)
	}

	// Workspace is the persisted activity record of an editor workspace.
	Workspace struct {
		ID         string `json:"id"`
		LastActive int64  `json:"lastActive"`
	}

	WorkspaceRegistry interface {
		ListWorkspaces(ctx context.Context) ([]Workspace, error)
		TouchWorkspace(ctx context.Context, workspaceID string) error
		DeleteWorkspace(ctx context.Context, workspaceID string) error
	}

	// Export is a rendered PNG kept in the export history of a workspace.
	Export struct {
		ID          string `json:"id"`
		WorkspaceID string `json:"workspaceId"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		CreatedAt   int64  `json:"createdAt"`
		Data        []byte `json:"-"`
	}

	// ExportStore keeps at most a fixed number of exports per workspace,
	// dropping the oldest first. ListExports omits Data.
	ExportStore interface {
		SaveExport(ctx context.Context, export *Export) (string, error)
		ListExports(ctx context.Context, workspaceID string) ([]Export, error)
		GetExport(ctx context.Context, id string) (*Export, error)
		DeleteExport(ctx context.Context, id string) error
	}
)

// Severity of a user notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// NotificationKind classifies a message for the surfacing policy.
type NotificationKind string

const (
	KindGeneral NotificationKind = "general"
	KindExport  NotificationKind = "export"
	KindReset   NotificationKind = "reset"
	KindTip     NotificationKind = "tip"
)

type (
	Notification struct {
		ID        string           `json:"id"`
		Kind      NotificationKind `json:"kind"`
		Message   string           `json:"message"`
		Severity  Severity         `json:"severity"`
		ExpiresAt time.Time        `json:"expiresAt"`
	}

	Notifier interface {
		Notify(n Notification)
	}
)

// DefaultMaxExports is the export history size used when none is configured.
const DefaultMaxExports = 10
