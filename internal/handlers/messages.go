package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
	"github.com/lehigh-university-libraries/imagechat/internal/transcript"
)

type exchangeResponse struct {
	User      models.Message `json:"user"`
	Assistant models.Message `json:"assistant"`
}

// HandleMessage records one chat turn. Model failures still produce a 200
// with the degraded assistant text.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var response exchangeResponse
	err := h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		var err error
		response.User, response.Assistant, err = s.Store.RecordExchange(r.Context(), request.Text)
		return err
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.writeJSON(w, response)
}

func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	format, err := transcript.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var t *transcript.Transcript
	err = h.sessionStore.Do(r.PathValue("id"), func(s *storage.Session) error {
		t = transcript.Build(s.ID, s.Store)
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := transcript.Write(&buf, t, format); err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="transcript-`+t.SessionID+"."+string(format)+`"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.writeError(w, "Unable to write transcript", http.StatusInternalServerError)
	}
}
