package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/imagechat/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "It is a cat."}}]
}`

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	text, err := New("test-key", srv.URL+"/").Generate(context.Background(), providers.Request{
		Model:   "gpt-4o-mini",
		Prompt:  "what animal?",
		History: []providers.Turn{{Role: providers.RoleUser, Content: "hi"}, {Role: providers.RoleAssistant, Content: "hello"}},
		Image:   &providers.Image{MIMEType: "image/jpeg", Data: []byte("abc")},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is a cat.", text)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)

	last := messages[2].(map[string]any)
	parts, ok := last["content"].([]any)
	require.True(t, ok, "image turns use content parts")
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	assert.Equal(t, "data:image/jpeg;base64,YWJj", imagePart["image_url"].(map[string]any)["url"])
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantQuota bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			wantQuota: true,
		},
		{
			name:      "bad request",
			status:    http.StatusBadRequest,
			body:      `{"error":{"message":"Invalid image","type":"invalid_request_error","code":"invalid_image"}}`,
			wantQuota: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("k", srv.URL+"/").Generate(context.Background(), providers.Request{Model: "m", Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.wantQuota, providers.IsQuota(err))
		})
	}
}
