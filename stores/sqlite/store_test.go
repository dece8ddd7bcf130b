package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
)

func setupTestDB(t *testing.T, maxExports int) *sqliteStore {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"), maxExports)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_TablesCreated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(dbPath, 0)
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewStore() did not create database file")
	}

	for _, table := range []string{"documents", "assets", "workspaces", "exports"} {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}
}

func TestCreate_FindID(t *testing.T) {
	store := setupTestDB(t, 0)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Document{Data: *bytes.NewBufferString(`{"background":"#ffffff"}`)})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	doc, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if doc.Data.String() != `{"background":"#ffffff"}` {
		t.Errorf("FindID() data = %q", doc.Data.String())
	}

	_, err = store.FindID(ctx, "missing")
	if err == nil || err.Error() != "document with id missing not found" {
		t.Errorf("FindID(missing) error = %v", err)
	}
}

func TestAssets(t *testing.T) {
	store := setupTestDB(t, 0)
	ctx := context.Background()

	for _, name := range []string{"cap", "beanie"} {
		if err := store.SaveAsset(ctx, &core.Asset{Name: name, Category: core.CategoryHat, URI: "data:,"}); err != nil {
			t.Fatalf("SaveAsset() failed: %v", err)
		}
	}

	hats, err := store.ListAssets(ctx, core.CategoryHat)
	if err != nil {
		t.Fatalf("ListAssets() failed: %v", err)
	}
	if len(hats) != 2 || hats[0].Name != "cap" {
		t.Errorf("ListAssets() = %+v", hats)
	}

	empty, _ := store.ListAssets(ctx, core.CategoryAccessories)
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListAssets(empty) = %#v, want empty slice", empty)
	}

	if err := store.SaveAsset(ctx, &core.Asset{Name: "x", Category: "shoes"}); !core.IsCode(err, core.CodeValidation) {
		t.Errorf("SaveAsset(shoes) error = %v", err)
	}
}

type brokenRows struct {
	left int
	err  error
}

func (r *brokenRows) Next() bool {
	if r.left == 0 {
		return false
	}
	r.left--
	return true
}

func (r *brokenRows) Scan(dest ...any) error {
	*dest[1].(*string) = "cap"
	*dest[4].(*int64) = 1
	return nil
}

func (r *brokenRows) Err() error { return r.err }

func TestScanAssets_InterruptedListing(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	got := scanAssets(logrus.NewEntry(logger), &brokenRows{left: 2, err: errors.New("disk I/O error")})
	if len(got) != 2 || got[0].Name != "cap" {
		t.Errorf("scanAssets() = %+v, want the two rows read", got)
	}
	if !strings.Contains(buf.String(), "Asset listing interrupted") {
		t.Errorf("log = %q, want interrupted warning", buf.String())
	}

	buf.Reset()
	got = scanAssets(logrus.NewEntry(logger), &brokenRows{err: errors.New("disk I/O error")})
	if got == nil || len(got) != 0 {
		t.Errorf("scanAssets() = %#v, want empty slice", got)
	}
}

func TestWorkspaces_Upsert(t *testing.T) {
	store := setupTestDB(t, 0)
	ctx := context.Background()

	_ = store.TouchWorkspace(ctx, "a")
	_ = store.TouchWorkspace(ctx, "a")
	_ = store.TouchWorkspace(ctx, "b")

	workspaces, err := store.ListWorkspaces(ctx)
	if err != nil {
		t.Fatalf("ListWorkspaces() failed: %v", err)
	}
	if len(workspaces) != 2 {
		t.Errorf("ListWorkspaces() = %+v, want 2", workspaces)
	}

	_ = store.DeleteWorkspace(ctx, "a")
	workspaces, _ = store.ListWorkspaces(ctx)
	if len(workspaces) != 1 {
		t.Errorf("after delete ListWorkspaces() = %+v", workspaces)
	}
}

func TestSaveExport_MaxExportsLimit(t *testing.T) {
	store := setupTestDB(t, 3)
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		id, err := store.SaveExport(ctx, &core.Export{
			WorkspaceID: "ws",
			Width:       800,
			Height:      800,
			CreatedAt:   int64(100 + i),
			Data:        []byte(fmt.Sprintf("png-%d", i)),
		})
		if err != nil {
			t.Fatalf("SaveExport() failed for export %d: %v", i, err)
		}
		ids[i] = id
	}

	exports, err := store.ListExports(ctx, "ws")
	if err != nil {
		t.Fatalf("ListExports() failed: %v", err)
	}
	if len(exports) != 3 {
		t.Fatalf("Export count mismatch: got %d, want 3", len(exports))
	}
	if exports[0].ID != ids[4] {
		t.Errorf("newest export first: got %s, want %s", exports[0].ID, ids[4])
	}

	for i := 0; i < 2; i++ {
		if _, err := store.GetExport(ctx, ids[i]); err == nil {
			t.Errorf("Old export %d should have been deleted", i)
		}
	}
	e, err := store.GetExport(ctx, ids[3])
	if err != nil {
		t.Fatalf("GetExport() failed: %v", err)
	}
	if string(e.Data) != "png-3" || e.Width != 800 {
		t.Errorf("GetExport() = %+v", e)
	}
}

func TestDeleteExport_NotFound(t *testing.T) {
	store := setupTestDB(t, 0)

	err := store.DeleteExport(context.Background(), "missing")
	if !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("DeleteExport() error = %v, want NOT_FOUND", err)
	}
}

func TestConcurrentDocumentOperations(t *testing.T) {
	store := setupTestDB(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			id, err := store.Create(ctx, &core.Document{Data: *bytes.NewBufferString(fmt.Sprintf("doc-%d", index))})
			if err != nil {
				t.Errorf("Create() failed: %v", err)
				return
			}
			if _, err := store.FindID(ctx, id); err != nil {
				t.Errorf("FindID() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestSQLInjection(t *testing.T) {
	store := setupTestDB(t, 0)
	ctx := context.Background()

	_, err := store.FindID(ctx, "'; DROP TABLE documents; --")
	if !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("FindID() error = %v", err)
	}
	if _, err := store.Create(ctx, &core.Document{Data: *bytes.NewBufferString("still here")}); err != nil {
		t.Errorf("documents table damaged: %v", err)
	}
}
