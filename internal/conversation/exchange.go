package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

// offlinePromptRunes bounds how much of the prompt is echoed in offline mode.
const offlinePromptRunes = 80

// AppendMessage appends one message to the transcript.
func (s *Store) AppendMessage(sender models.Sender, content string) (models.Message, error) {
	if !sender.Valid() {
		return models.Message{}, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	msg := models.Message{
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// RecordExchange runs one chat turn. The trimmed userText is appended as a
// user message, the model is asked with the prior transcript and the active
// image, and its answer is appended as the assistant message. Model failures
// never lose the turn: a quota failure becomes an offline placeholder and any
// other failure becomes a visible error text. The only returned error is
// ErrEmptyMessage for blank input, in which case nothing is appended.
func (s *Store) RecordExchange(ctx context.Context, userText string) (models.Message, models.Message, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return models.Message{}, models.Message{}, ErrEmptyMessage
	}

	history := s.history()
	userMsg, err := s.AppendMessage(models.SenderUser, text)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}

	var img *providers.Image
	if active, ok := s.ActiveImage(); ok {
		img = payload(active)
	}

	reply, err := s.client.Generate(ctx, text, history, img)
	switch {
	case err != nil && providers.IsQuota(err):
		slog.Warn("Model quota exceeded, answering in offline mode", "error", err)
		reply = OfflineReply(text)
	case err != nil:
		slog.Error("Model call failed", "error", err)
		reply = ErrorReply(err)
	case strings.TrimSpace(reply) == "":
		reply = ErrorReply(fmt.Errorf("model returned an empty response"))
	}

	assistantMsg := models.Message{
		Sender:    models.SenderAssistant,
		Content:   reply,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, assistantMsg)

	return userMsg, assistantMsg, nil
}

// OfflineReply is the placeholder answer used while the model quota is exhausted.
func OfflineReply(prompt string) string {
	return fmt.Sprintf("🤖 Offline mode: the model is over its quota right now, so I can't answer. You asked: %q", truncate(prompt, offlinePromptRunes))
}

// ErrorReply formats a model failure as an assistant message
func ErrorReply(err error) string {
	return "⚠️ Error: " + err.Error()
}

func (s *Store) history() []providers.Turn {
	turns := make([]providers.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		role := providers.RoleUser
		if m.Sender == models.SenderAssistant {
			role = providers.RoleAssistant
		}
		turns = append(turns, providers.Turn{Role: role, Content: m.Content})
	}
	return turns
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
