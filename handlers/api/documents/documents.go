package documents

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/editor"
)

type (
	DocumentCreateResponse struct {
		ID string `json:"id"`
	}

	// Workspaces resolves live workspaces by id.
	Workspaces interface {
		Get(id string) (*editor.Workspace, error)
	}
)

// HandleCreate saves a composition. With ?workspace=<id> the current
// composition of that workspace is saved, otherwise the request body.
func HandleCreate(store core.DocumentStore, workspaces Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data []byte
		if wsID := r.URL.Query().Get("workspace"); wsID != "" && workspaces != nil {
			ws, err := workspaces.Get(wsID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			data, err = ws.Document()
			if err != nil {
				logrus.WithField("workspace_id", wsID).WithError(err).Error("Failed to serialize workspace")
				http.Error(w, "Failed to serialize workspace", http.StatusInternalServerError)
				return
			}
		} else {
			var err error
			data, err = io.ReadAll(r.Body)
			if err != nil {
				logrus.WithError(err).Error("Failed to read request body")
				http.Error(w, "Failed to read request body", http.StatusInternalServerError)
				return
			}
		}

		id, err := store.Create(r.Context(), &core.Document{Data: *bytes.NewBuffer(data)})
		if err != nil {
			logrus.WithError(err).Error("Failed to save document")
			http.Error(w, "Failed to save", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, DocumentCreateResponse{ID: id})
	}
}

func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		document, err := store.FindID(r.Context(), id)
		if err != nil {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(document.Data.Bytes())
	}
}
