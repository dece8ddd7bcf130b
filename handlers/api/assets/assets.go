package assets

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	pfpmiddleware "github.com/nothing010101/pfp/middleware"
	pfprender "github.com/nothing010101/pfp/render"
)

// DefaultMaxUploadBytes caps the size of an uploaded asset image.
const DefaultMaxUploadBytes int64 = 5 << 20

const (
	msgInvalidFile     = "Please select a valid image file"
	msgMissingName     = "Please enter an asset name"
	msgInvalidCategory = "Please select a valid category"
)

var msgTooManyPixels = fmt.Sprintf("Image must be at most %dx%d pixels", pfprender.MaxImageSide, pfprender.MaxImageSide)

// HandleList returns the catalog entries of one category.
func HandleList(catalog core.AssetCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		if !core.ValidCategory(category) {
			http.Error(w, msgInvalidCategory, http.StatusBadRequest)
			return
		}

		assets, err := catalog.ListAssets(r.Context(), category)
		if err != nil {
			logrus.WithField("category", category).WithError(err).Warn("Failed to list assets")
			assets = nil
		}
		if assets == nil {
			assets = []core.Asset{}
		}
		render.JSON(w, r, assets)
	}
}

// HandleUpload stores a multipart upload (file, name, category) as a new
// catalog asset. The image is kept inline as a data URI.
func HandleUpload(catalog core.AssetCatalog, maxBytes int64) http.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	tooLarge := fmt.Sprintf("File size must be less than %dMB", maxBytes>>20)

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			logrus.WithError(err).Warn("Failed to parse upload")
			http.Error(w, tooLarge, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, msgInvalidFile, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxBytes {
			http.Error(w, tooLarge, http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			logrus.WithError(err).Error("Failed to read upload")
			http.Error(w, "Failed to read upload", http.StatusInternalServerError)
			return
		}
		if int64(len(data)) > maxBytes {
			http.Error(w, tooLarge, http.StatusBadRequest)
			return
		}

		mediaType := http.DetectContentType(data)
		if !strings.HasPrefix(mediaType, "image/") {
			http.Error(w, msgInvalidFile, http.StatusBadRequest)
			return
		}
		cfg, _, err := pfprender.CheckImageSize(data)
		if err != nil {
			logrus.WithError(err).Warn("Rejected upload image")
			if cfg.Width > 0 && cfg.Height > 0 {
				http.Error(w, msgTooManyPixels, http.StatusBadRequest)
			} else {
				http.Error(w, msgInvalidFile, http.StatusBadRequest)
			}
			return
		}

		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		if name == "" {
			http.Error(w, msgMissingName, http.StatusBadRequest)
			return
		}

		category := r.FormValue("category")
		if !core.ValidCategory(category) {
			http.Error(w, msgInvalidCategory, http.StatusBadRequest)
			return
		}

		asset := &core.Asset{
			Name:     name,
			Category: category,
			URI:      pfprender.EncodeDataURI(mediaType, data),
		}
		if err := catalog.SaveAsset(r.Context(), asset); err != nil {
			logrus.WithError(err).Error("Failed to save asset")
			http.Error(w, "Failed to save asset", core.GetCode(err).HTTPStatus())
			return
		}

		log := logrus.WithFields(logrus.Fields{
			"asset_id": asset.ID,
			"category": category,
			"bytes":    len(data),
		})
		if claims, ok := pfpmiddleware.ClaimsFrom(r.Context()); ok {
			log = log.WithField("uploader", claims.Name)
		}
		log.Info("Asset uploaded successfully")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, asset)
	}
}
