package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
)

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.List()
	sessionList := make([]*models.ChatSession, 0, len(sessions))
	for _, session := range sessions {
		var view *models.ChatSession
		err := h.sessionStore.Do(session.ID, func(s *storage.Session) error {
			view = h.sessionView(s)
			return nil
		})
		if err != nil {
			// deleted since List
			continue
		}
		sessionList = append(sessionList, view)
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessionStore.Create()
	var view *models.ChatSession
	err := h.sessionStore.Do(session.ID, func(s *storage.Session) error {
		view = h.sessionView(s)
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, view)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	var view *models.ChatSession
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		view = h.sessionView(s)
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, view)
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessionStore.Delete(r.PathValue("id")) {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
