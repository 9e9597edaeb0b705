package httpserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"activitychat/internal/config"
)

const maxUploadBytes = 10 << 20

var allowedUploadExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".heic": {},
}

// UploadRoutes returns a sub-router mounted at /api/uploads.
//   - POST /           stores the multipart "file" under a ULID name
//   - GET /{filename}  serves a stored file from cfg.UploadDir
func UploadRoutes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse multipart form"})
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if _, ok := allowedUploadExts[ext]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported file type"})
			return
		}

		// ULIDs sort by upload time.
		filename := ulid.Make().String() + ext
		destPath := filepath.Join(cfg.UploadDir, filename)

		out, err := os.Create(destPath)
		if err != nil {
			glog.Errorf("upload: create %s: %v", destPath, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create file"})
			return
		}
		defer out.Close()

		if _, err := io.Copy(out, file); err != nil {
			glog.Errorf("upload: write %s: %v", destPath, err)
			_ = os.Remove(destPath)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save file"})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"filename": filename,
			"url":      "/api/uploads/" + filename,
			"size":     header.Size,
		})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if filename == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing filename"})
			return
		}
		// Prevent path traversal by cleaning the path and not allowing separators.
		if filepath.Base(filename) != filename {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filename"})
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.UploadDir, filename))
	})

	return r
}
