package handlers

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/services"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

type DocumentHandler struct {
	service     services.DocumentService
	maxFileSize int64
	logger      *utils.Logger
}

func NewDocumentHandler(service services.DocumentService, maxFileSize int64, logger *utils.Logger) *DocumentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &DocumentHandler{
		service:     service,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// UploadDocuments accepts a multipart form with one or more "files"
// parts and an optional "session_id" field. The response reports every
// file individually.
func (h *DocumentHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, h.logger, utils.NewBadRequestError("X-User-ID header is required"))
		return
	}

	// Cap the whole request to the per-file limit times a small batch;
	// individual file sizes are enforced again downstream.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize*10)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid or oversized form data"))
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		respondError(w, h.logger, utils.NewBadRequestError("No files provided"))
		return
	}

	req := &models.UploadRequest{
		OwnerID:   owner,
		SessionID: r.FormValue("session_id"),
	}
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			respondError(w, h.logger, utils.NewInternalError("Failed to read file"))
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
		file.Close()
		if err != nil {
			respondError(w, h.logger, utils.NewInternalError("Failed to read file"))
			return
		}
		req.Files = append(req.Files, models.UploadFile{
			Filename: header.Filename,
			Content:  data,
			FileType: header.Header.Get("Content-Type"),
		})
	}

	resp, err := h.service.Upload(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, resp)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		respondError(w, h.logger, utils.NewBadRequestError("Document ID is required"))
		return
	}

	doc, err := h.service.GetDocument(r.Context(), ownerID(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	docs, err := h.service.ListDocuments(r.Context(), ownerID(r), sessionID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *DocumentHandler) RegenerateSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp, err := h.service.RegenerateSummary(r.Context(), ownerID(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, resp)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteDocument(r.Context(), ownerID(r), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
