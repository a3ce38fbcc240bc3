package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

const name = "ollama"

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a new Ollama provider. An empty baseURL falls back to
// OLLAMA_URL, OLLAMA_HOST and finally http://localhost:11434.
func New(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_URL")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

func (o *Ollama) Name() string {
	return name
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Generate answers the prompt using the Ollama chat endpoint
func (o *Ollama) Generate(ctx context.Context, req providers.Request) (string, error) {
	messages := make([]chatMessage, 0, len(req.History)+1)
	for _, t := range req.History {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Content})
	}
	current := chatMessage{Role: string(providers.RoleUser), Content: req.Prompt}
	if req.Image != nil {
		current.Images = []string{req.Image.Base64()}
	}
	messages = append(messages, current)

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":    req.Model,
		"messages": messages,
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	})
	if err != nil {
		return "", providers.Failure(name, fmt.Errorf("failed to marshal request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", providers.Failure(name, fmt.Errorf("failed to create new request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", providers.Failure(name, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", providers.Quota(name, err)
		}
		return "", providers.Failure(name, err)
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", providers.Failure(name, fmt.Errorf("failed to decode response body: %w", err))
	}

	return response.Message.Content, nil
}
