package assets

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/stores/memory"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngOfSize(t, 4, 4)
}

func pngOfSize(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		_, _ = fw.Write(data)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUpload_Success(t *testing.T) {
	catalog := memory.NewStore(0)
	handler := HandleUpload(catalog, 0)

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, "cap.png", pngBytes(t), map[string]string{"category": core.CategoryHat}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var asset core.Asset
	if err := json.NewDecoder(rec.Body).Decode(&asset); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if asset.ID == "" || asset.Name != "cap" || asset.Category != core.CategoryHat {
		t.Errorf("asset = %+v", asset)
	}
	if !strings.HasPrefix(asset.URI, "data:image/png;base64,") {
		t.Errorf("URI = %.40q", asset.URI)
	}

	listed, _ := catalog.ListAssets(t.Context(), core.CategoryHat)
	if len(listed) != 1 || listed[0].ID != asset.ID {
		t.Errorf("catalog = %+v", listed)
	}
}

func TestHandleUpload_Validation(t *testing.T) {
	img := pngBytes(t)
	oversized := append(append([]byte(nil), img...), make([]byte, 1<<20)...)

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		want     string
	}{
		{"no file", "", nil, map[string]string{"name": "x", "category": "hat"}, "Please select a valid image file"},
		{"not an image", "notes.txt", []byte("hello world"), map[string]string{"category": "hat"}, "Please select a valid image file"},
		{"too large", "big.png", oversized, map[string]string{"category": "hat"}, "File size must be less than 1MB"},
		{"no name", ".png", img, map[string]string{"category": "hat"}, "Please enter an asset name"},
		{"blank name", ".png", img, map[string]string{"name": "  ", "category": "hat"}, "Please enter an asset name"},
		{"bad category", "cap.png", img, map[string]string{"category": "shoes"}, "Please select a valid category"},
		{"too many pixels", "wide.png", pngOfSize(t, 5000, 1), map[string]string{"category": "hat"}, "Image must be at most 4096x4096 pixels"},
		{"unreadable image", "broken.png", []byte("\x89PNG\r\n\x1a\n garbage"), map[string]string{"category": "hat"}, "Please select a valid image file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			catalog := memory.NewStore(0)
			rec := httptest.NewRecorder()

			HandleUpload(catalog, 1<<20)(rec, uploadRequest(t, tc.filename, tc.data, tc.fields))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.want)
			}
			for _, c := range core.Categories {
				if listed, _ := catalog.ListAssets(t.Context(), c); len(listed) != 0 {
					t.Errorf("rejected upload reached the catalog: %+v", listed)
				}
			}
		})
	}
}

func TestHandleList(t *testing.T) {
	catalog := memory.NewStore(0)
	_ = catalog.SaveAsset(t.Context(), &core.Asset{Name: "curls", Category: core.CategoryHair, URI: "data:,"})

	rec := httptest.NewRecorder()
	HandleList(catalog)(rec, httptest.NewRequest(http.MethodGet, "/api/assets?category=hair", http.NoBody))
	var listed []core.Asset
	_ = json.NewDecoder(rec.Body).Decode(&listed)
	if rec.Code != http.StatusOK || len(listed) != 1 || listed[0].Name != "curls" {
		t.Errorf("hair = %d %+v", rec.Code, listed)
	}

	rec = httptest.NewRecorder()
	HandleList(catalog)(rec, httptest.NewRequest(http.MethodGet, "/api/assets?category=hands", http.NoBody))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty category body = %q, want []", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HandleList(catalog)(rec, httptest.NewRequest(http.MethodGet, "/api/assets?category=shoes", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown category: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
