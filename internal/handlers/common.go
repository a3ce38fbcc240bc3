package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
	"github.com/lehigh-university-libraries/imagechat/internal/images"
	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
)

type Handler struct {
	sessionStore *storage.SessionStore
	fetcher      *images.Fetcher
	provider     string
	model        string
	staticDir    string
	maxUpload    int64
}

// Options describe the model shown to clients and where static files live
type Options struct {
	Provider  string
	Model     string
	StaticDir string
	// MaxUploadBytes caps a whole upload request body; zero means DefaultMaxUploadBytes
	MaxUploadBytes int64
}

func New(sessionStore *storage.SessionStore, fetcher *images.Fetcher, opts Options) *Handler {
	if opts.StaticDir == "" {
		opts.StaticDir = "static"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		sessionStore: sessionStore,
		fetcher:      fetcher,
		provider:     opts.Provider,
		model:        opts.Model,
		staticDir:    opts.StaticDir,
		maxUpload:    opts.MaxUploadBytes,
	}
}

// Routes registers every endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/images", h.HandleUpload)
	mux.HandleFunc("DELETE /api/sessions/{id}/images", h.HandleClearImages)
	mux.HandleFunc("GET /api/sessions/{id}/images/{key}", h.HandleImage)
	mux.HandleFunc("DELETE /api/sessions/{id}/images/{key}", h.HandleRemoveImage)
	mux.HandleFunc("POST /api/sessions/{id}/images/{key}/select", h.HandleSelectImage)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.HandleMessage)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", h.HandleTranscript)
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleStatic)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Warn(message, "status", code)
	}
	http.Error(w, message, code)
}

// writeStoreError maps store and registry errors onto HTTP status codes
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, conversation.ErrNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, conversation.ErrDecode),
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrInvalidSender):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// sessionView renders a session; callers hold the session lock
func (h *Handler) sessionView(session *storage.Session) *models.ChatSession {
	imgs := session.Store.Images()
	view := &models.ChatSession{
		ID:          session.ID,
		Messages:    session.Store.Messages(),
		Images:      make([]models.Image, 0, len(imgs)),
		ActiveImage: session.Store.ActiveKey(),
		Provider:    h.provider,
		Model:       h.model,
		CreatedAt:   session.CreatedAt,
	}
	for _, img := range imgs {
		view.Images = append(view.Images, *img)
	}
	return view
}
