package workspaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/editor"
	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/handlers/api/exports"
	"github.com/nothing010101/pfp/layers"
	pfprender "github.com/nothing010101/pfp/render"
)

const maxPayloadBytes = 64 << 10

type (
	AddLayerRequest struct {
		AssetID  string      `json:"assetId"`
		Category string      `json:"category"`
		Asset    *core.Asset `json:"asset"`
		X        *float64    `json:"x"`
		Y        *float64    `json:"y"`
	}

	BackgroundRequest struct {
		Color  string `json:"color"`
		Preset bool   `json:"preset"`
	}

	VisibilityResponse struct {
		ID      string `json:"id"`
		Visible bool   `json:"visible"`
	}
)

// Routes mounts the workspace API on r. The export history routes are
// mounted when history is non-nil.
func Routes(r chi.Router, reg *editor.Registry, catalog core.AssetCatalog, docs core.DocumentStore, history core.ExportStore) {
	r.Post("/", HandleCreate(reg))
	r.Get("/", HandleList(reg))
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", HandleGet(reg))
		r.Delete("/", HandleDelete(reg))
		r.Post("/layers", HandleAddLayer(reg, catalog))
		r.Delete("/layers/{layerId}", HandleDeleteLayer(reg))
		r.Post("/layers/{layerId}/{action}", HandleLayerAction(reg))
		r.Post("/drop", HandleDrop(reg))
		r.Delete("/selection", HandleClearSelection(reg))
		r.Put("/background", HandleBackground(reg))
		r.Post("/reset", HandleReset(reg))
		r.Post("/export", HandleExport(reg))
		r.Post("/load/{documentId}", HandleLoad(reg, docs))
		if history != nil {
			r.Get("/exports", exports.HandleList(history))
			r.Get("/exports/count", exports.HandleCount(history))
		}
	})
}

func statusOf(err error) int {
	if errors.Is(err, layers.ErrLayerNotFound) {
		return http.StatusNotFound
	}
	return core.GetCode(err).HTTPStatus()
}

func fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("Workspace request failed")
	}
	http.Error(w, err.Error(), status)
}

// workspace resolves the {id} URL parameter, writing a 404 when unknown.
func workspace(w http.ResponseWriter, r *http.Request, reg *editor.Registry) (*editor.Workspace, bool) {
	ws, err := reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		logrus.WithField("error", "workspace not found").Warn("Workspace with specified ID not found")
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return ws, true
}

func writeState(w http.ResponseWriter, r *http.Request, ws *editor.Workspace) {
	render.JSON(w, r, ws.State())
}

func HandleCreate(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws := reg.Create()
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, ws.State())
	}
}

func HandleList(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list workspaces")
			http.Error(w, "Failed to list workspaces", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, list)
	}
}

func HandleGet(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ws, ok := workspace(w, r, reg); ok {
			writeState(w, r, ws)
		}
	}
}

func HandleDelete(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAddLayer adds a catalog asset, referenced by id and category or
// given inline. Without x and y the layer is centered.
func HandleAddLayer(reg *editor.Registry, catalog core.AssetCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		var req AddLayerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		var asset core.Asset
		switch {
		case req.Asset != nil && req.Asset.URI != "":
			asset = *req.Asset
		case req.AssetID != "" && catalog != nil:
			found, err := lookupAsset(r, catalog, req.Category, req.AssetID)
			if err != nil {
				fail(w, err)
				return
			}
			asset = found
		default:
			http.Error(w, "asset or assetId is required", http.StatusBadRequest)
			return
		}

		var drop *geometry.Point
		if req.X != nil && req.Y != nil {
			drop = &geometry.Point{X: *req.X, Y: *req.Y}
		}
		l, err := ws.AddAsset(asset, drop)
		if err != nil {
			fail(w, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, l)
	}
}

func lookupAsset(r *http.Request, catalog core.AssetCatalog, category, id string) (core.Asset, error) {
	if !core.ValidCategory(category) {
		return core.Asset{}, core.Errorf(core.CodeValidation, "unknown category %q", category)
	}
	assets, err := catalog.ListAssets(r.Context(), category)
	if err != nil {
		return core.Asset{}, err
	}
	for _, a := range assets {
		if a.ID == id {
			return a, nil
		}
	}
	return core.Asset{}, core.Errorf(core.CodeNotFound, "asset with id %s not found", id)
}

// HandleDrop adds the asset carried by a raw drag-and-drop payload at the
// ?x= and ?y= canvas coordinates.
func HandleDrop(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if errX != nil || errY != nil {
			http.Error(w, "x and y are required", http.StatusBadRequest)
			return
		}
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		l, err := ws.Drop(payload, geometry.Point{X: x, Y: y})
		if err != nil {
			fail(w, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, l)
	}
}

func HandleDeleteLayer(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}
		if err := ws.DeleteLayer(chi.URLParam(r, "layerId")); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleLayerAction applies up, down, visibility or select to a layer.
func HandleLayerAction(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		id := chi.URLParam(r, "layerId")
		var err error
		switch chi.URLParam(r, "action") {
		case "up":
			err = ws.MoveUp(id)
		case "down":
			err = ws.MoveDown(id)
		case "select":
			err = ws.Select(id)
		case "visibility":
			var visible bool
			if visible, err = ws.ToggleVisible(id); err == nil {
				render.JSON(w, r, VisibilityResponse{ID: id, Visible: visible})
				return
			}
		default:
			http.Error(w, "unknown layer action", http.StatusNotFound)
			return
		}
		if err != nil {
			fail(w, err)
			return
		}
		writeState(w, r, ws)
	}
}

func HandleClearSelection(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}
		_ = ws.ClearSelection()
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleBackground(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		var req BackgroundRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := ws.SetBackground(req.Color, req.Preset); err != nil {
			fail(w, err)
			return
		}
		writeState(w, r, ws)
	}
}

func HandleReset(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}
		_ = ws.Reset()
		writeState(w, r, ws)
	}
}

// HandleExport renders the workspace and delivers the PNG as a download,
// or as a save view for mobile clients.
func HandleExport(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		res, err := ws.Export(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		if res.ID != "" {
			w.Header().Set("X-Export-Id", res.ID)
		}
		if err := pfprender.Deliver(w, r, &res.Result); err != nil {
			logrus.WithField("workspace_id", ws.ID()).WithError(err).Error("Failed to deliver export")
		}
	}
}

// HandleLoad replaces the workspace composition with a saved document.
func HandleLoad(reg *editor.Registry, docs core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := workspace(w, r, reg)
		if !ok {
			return
		}

		doc, err := docs.FindID(r.Context(), chi.URLParam(r, "documentId"))
		if err != nil {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		if err := ws.Load(doc.Data.Bytes()); err != nil {
			fail(w, err)
			return
		}
		writeState(w, r, ws)
	}
}
