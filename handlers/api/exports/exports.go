package exports

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	pfprender "github.com/nothing010101/pfp/render"
)

// HandleList lists the export history of a workspace, newest first. Image
// data is not included.
func HandleList(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		exports, err := store.ListExports(r.Context(), workspaceID)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to list exports")
			http.Error(w, "Failed to list exports", http.StatusInternalServerError)
			return
		}

		if exports == nil {
			exports = []core.Export{}
		}

		render.JSON(w, r, exports)
	}
}

// HandleCount returns the number of kept exports of a workspace.
func HandleCount(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		exports, err := store.ListExports(r.Context(), workspaceID)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to list exports")
			http.Error(w, "Failed to get export count", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, map[string]int{"count": len(exports)})
	}
}

// HandleGet delivers a kept export the same way a fresh one is delivered.
func HandleGet(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exportID := chi.URLParam(r, "exportId")

		export, err := store.GetExport(r.Context(), exportID)
		if err != nil {
			logrus.WithField("error", err).Warn("Failed to get export")
			http.Error(w, "Export not found", core.GetCode(err).HTTPStatus())
			return
		}

		res := &pfprender.Result{
			PNG:       export.Data,
			Width:     export.Width,
			Height:    export.Height,
			CreatedAt: time.UnixMilli(export.CreatedAt),
		}
		if err := pfprender.Deliver(w, r, res); err != nil {
			logrus.WithField("export_id", exportID).WithError(err).Error("Failed to deliver export")
		}
	}
}

func HandleDelete(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exportID := chi.URLParam(r, "exportId")

		if err := store.DeleteExport(r.Context(), exportID); err != nil {
			logrus.WithField("error", err).Error("Failed to delete export")
			http.Error(w, "Failed to delete export", core.GetCode(err).HTTPStatus())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
