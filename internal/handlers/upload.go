package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
	"github.com/lehigh-university-libraries/imagechat/internal/images"
	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
)

const (
	// MaxFilesPerBatch bounds the number of files in one multipart upload
	MaxFilesPerBatch = 10
	// DefaultMaxUploadBytes leaves room for multipart framing around a full batch
	DefaultMaxUploadBytes = images.MaxImageBytes*MaxFilesPerBatch + 1<<20
)

type uploadResponse struct {
	Images      []*models.Image `json:"images"`
	ActiveImage string          `json:"active_image,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	// Check if this is a JSON request with image URL
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		h.handleURLUpload(w, r)
		return
	}

	// Handle file upload
	h.handleFileUpload(w, r)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ImageURL string `json:"image_url"`
		Key      string `json:"key"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	if _, ok := h.sessionStore.Get(r.PathValue("id")); !ok {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}

	data, filename, err := h.fetcher.Fetch(r.Context(), request.ImageURL)
	if err != nil {
		h.writeError(w, "Failed to process image URL: "+err.Error(), http.StatusBadRequest)
		return
	}

	key := request.Key
	if key == "" {
		key = filename
	}

	h.ingest(w, r, []conversation.Upload{{Key: key, Data: data}})
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, fmt.Sprintf("Upload too large (max %d bytes)", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		h.writeError(w, "Failed to read file: no files or file field", http.StatusBadRequest)
		return
	}
	if len(headers) > MaxFilesPerBatch {
		h.writeError(w, fmt.Sprintf("Too many files (max %d per upload)", MaxFilesPerBatch), http.StatusBadRequest)
		return
	}

	uploads := make([]conversation.Upload, 0, len(headers))
	for _, header := range headers {
		data, err := readUpload(header)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, conversation.Upload{Key: header.Filename, Data: data})
	}

	h.ingest(w, r, uploads)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, uploads []conversation.Upload) {
	var response uploadResponse
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		ingested, err := s.Store.IngestBatch(r.Context(), uploads)
		response.Images = ingested
		response.ActiveImage = s.Store.ActiveKey()
		return err
	})

	if errors.Is(err, storage.ErrSessionNotFound) {
		h.writeStoreError(w, err)
		return
	}
	if err != nil {
		if len(response.Images) == 0 {
			h.writeStoreError(w, err)
			return
		}
		for _, e := range unwrapJoined(err) {
			response.Errors = append(response.Errors, e.Error())
		}
	}

	h.writeJSON(w, response)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, images.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents %s: %w", header.Filename, err)
	}

	if len(data) > images.MaxImageBytes {
		return nil, fmt.Errorf("file too large (max 10MB): %s", header.Filename)
	}

	return data, nil
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func (h *Handler) HandleSelectImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		return s.Store.SelectImage(key)
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"active_image": key})
}

func (h *Handler) HandleRemoveImage(w http.ResponseWriter, r *http.Request) {
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		return s.Store.RemoveImage(r.PathValue("key"))
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleClearImages(w http.ResponseWriter, r *http.Request) {
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		s.Store.ClearImages()
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImage serves the normalized JPEG payload of one image
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	var img *models.Image
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		var err error
		img, err = s.Store.Image(r.PathValue("key"))
		return err
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", img.MIMEType)
	if _, err := w.Write(img.Data); err != nil {
		slog.Error("Unable to write image", "key", img.Key, "err", err)
	}
}
