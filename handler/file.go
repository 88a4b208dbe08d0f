package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/storage"
	"github.com/lexicara/kintone-http-service/common/utils"
)

// FileHandler proxies kintone file upload and download, and can archive
// an uploaded file into cloud storage.
type FileHandler struct {
	client  *kintone.Client
	storage storage.StorageService
	bucket  string
	router  *chi.Mux
}

func NewFileHandler(client *kintone.Client) *FileHandler {
	h := &FileHandler{
		client: client,
	}

	r := chi.NewRouter()
	r.Post("/", h.handleUpload)
	r.Get("/{fileKey}", h.handleDownload)
	r.Post("/archive", h.handleArchive)

	h.router = r
	return h
}

func (h *FileHandler) SetStorage(svc storage.StorageService, bucket string) {
	h.storage = svc
	h.bucket = bucket
}

func (h *FileHandler) Router() *chi.Mux {
	return h.router
}

// 100 MB, matching the upstream per-file cap.
const maxUploadBytes = 100 << 20

func (h *FileHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	fileKey, err := h.client.UploadFile(r.Context(), header.Filename, file)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]any{"fileKey": fileKey})
}

func (h *FileHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")

	body, contentType, err := h.client.DownloadFile(r.Context(), fileKey)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Error().Err(err).Str("fileKey", fileKey).Msg("Streaming file download failed")
	}
}

type archiveRequest struct {
	FileKey    string `json:"file_key"`
	ObjectName string `json:"object_name,omitempty"`
}

func (h *FileHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Archive storage is not configured")
		return
	}

	var p archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if p.FileKey == "" {
		utils.WriteError(w, http.StatusBadRequest, "file_key is required")
		return
	}

	objectName := p.ObjectName
	if objectName == "" {
		id, err := uuid.NewV7()
		if err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Failed to generate object name")
			return
		}
		objectName = fmt.Sprintf("archive/%s/%s", time.Now().UTC().Format("2006/01/02"), id.String())
	}

	body, contentType, err := h.client.DownloadFile(r.Context(), p.FileKey)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}
	defer body.Close()

	uploaded, err := h.storage.StreamUpload(r.Context(), h.bucket, objectName, body, contentType)
	if err != nil {
		log.Error().Err(err).Str("object", objectName).Msg("Archiving file to storage failed")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to archive file")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]any{
		"bucket": h.bucket,
		"object": uploaded,
	})
}
