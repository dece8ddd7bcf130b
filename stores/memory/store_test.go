package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nothing010101/pfp/core"
)

func TestCreate_Success(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	doc := &core.Document{Data: *bytes.NewBufferString(`{"layers":[]}`)}

	id, err := store.Create(ctx, doc)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// ULIDs are 26 characters
	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}

	retrieved, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if retrieved.Data.String() != `{"layers":[]}` {
		t.Errorf("FindID() data mismatch: got %q", retrieved.Data.String())
	}
}

func TestFindID_NotFound(t *testing.T) {
	store := NewStore(0)

	_, err := store.FindID(context.Background(), "nonexistent-id")
	if err == nil {
		t.Fatal("FindID() should return error for nonexistent ID")
	}

	expectedError := "document with id nonexistent-id not found"
	if err.Error() != expectedError {
		t.Errorf("FindID() error mismatch: got %q, want %q", err.Error(), expectedError)
	}
	if !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("FindID() code = %s, want NOT_FOUND", core.GetCode(err))
	}
}

func TestConcurrentCreate(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	numGoroutines := 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]bool)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			doc := &core.Document{Data: *bytes.NewBufferString(fmt.Sprintf("doc-%d", index))}
			id, err := store.Create(ctx, doc)
			if err != nil {
				t.Errorf("Concurrent Create() failed: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}(i)
	}

	wg.Wait()

	if len(ids) != numGoroutines {
		t.Errorf("Expected %d unique IDs, got %d", numGoroutines, len(ids))
	}
}

func TestSaveAsset_ListByCategory(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	hat := &core.Asset{Name: "cap", Category: core.CategoryHat, URI: "data:,"}
	if err := store.SaveAsset(ctx, hat); err != nil {
		t.Fatalf("SaveAsset() failed: %v", err)
	}
	if hat.ID == "" || hat.CreatedAt.IsZero() {
		t.Errorf("SaveAsset() did not fill id and time: %+v", hat)
	}
	_ = store.SaveAsset(ctx, &core.Asset{Name: "bob", Category: core.CategoryHair, URI: "data:,"})

	hats, err := store.ListAssets(ctx, core.CategoryHat)
	if err != nil {
		t.Fatalf("ListAssets() failed: %v", err)
	}
	if len(hats) != 1 || hats[0].Name != "cap" {
		t.Errorf("ListAssets(hat) = %+v", hats)
	}

	hands, _ := store.ListAssets(ctx, core.CategoryHands)
	if len(hands) != 0 {
		t.Errorf("ListAssets(hands) = %+v, want empty", hands)
	}
}

func TestSaveAsset_UnknownCategory(t *testing.T) {
	store := NewStore(0)

	err := store.SaveAsset(context.Background(), &core.Asset{Name: "x", Category: "shoes"})
	if !core.IsCode(err, core.CodeValidation) {
		t.Errorf("SaveAsset() error = %v, want VALIDATION", err)
	}
}

func TestWorkspaces(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	if err := store.TouchWorkspace(ctx, ""); err == nil {
		t.Error("TouchWorkspace() should reject an empty id")
	}
	_ = store.TouchWorkspace(ctx, "a")
	_ = store.TouchWorkspace(ctx, "b")

	workspaces, err := store.ListWorkspaces(ctx)
	if err != nil {
		t.Fatalf("ListWorkspaces() failed: %v", err)
	}
	if len(workspaces) != 2 {
		t.Fatalf("ListWorkspaces() = %+v, want 2", workspaces)
	}

	_ = store.DeleteWorkspace(ctx, "a")
	workspaces, _ = store.ListWorkspaces(ctx)
	if len(workspaces) != 1 || workspaces[0].ID != "b" {
		t.Errorf("after delete ListWorkspaces() = %+v", workspaces)
	}
}

func TestSaveExport_PrunesOldest(t *testing.T) {
	store := NewStore(3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.SaveExport(ctx, &core.Export{
			WorkspaceID: "ws",
			Width:       800,
			Height:      800,
			CreatedAt:   int64(1000 + i),
			Data:        []byte{byte(i)},
		})
		if err != nil {
			t.Fatalf("SaveExport() failed: %v", err)
		}
		ids = append(ids, id)
	}
	_, _ = store.SaveExport(ctx, &core.Export{WorkspaceID: "other", Data: []byte{9}})

	exports, err := store.ListExports(ctx, "ws")
	if err != nil {
		t.Fatalf("ListExports() failed: %v", err)
	}
	if len(exports) != 3 {
		t.Fatalf("ListExports() = %d exports, want 3", len(exports))
	}
	if exports[0].ID != ids[4] || exports[2].ID != ids[2] {
		t.Errorf("ListExports() order = %v, want newest first", exports)
	}
	if exports[0].Data != nil {
		t.Error("ListExports() should omit data")
	}

	if _, err := store.GetExport(ctx, ids[0]); !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("oldest export still present: %v", err)
	}
	e, err := store.GetExport(ctx, ids[4])
	if err != nil || len(e.Data) != 1 || e.Data[0] != 4 {
		t.Errorf("GetExport() = %+v, %v", e, err)
	}
}

func TestDeleteExport(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	id, _ := store.SaveExport(ctx, &core.Export{WorkspaceID: "ws", Data: []byte{1}})
	if err := store.DeleteExport(ctx, id); err != nil {
		t.Fatalf("DeleteExport() failed: %v", err)
	}
	if err := store.DeleteExport(ctx, id); !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("second DeleteExport() error = %v, want NOT_FOUND", err)
	}
}
