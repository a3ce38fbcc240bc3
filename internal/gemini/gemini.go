package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const name = "gemini"

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
}

// New returns a new Gemini provider
func New(apiKey string) *Gemini {
	return &Gemini{apiKey: apiKey}
}

func (g *Gemini) Name() string {
	return name
}

// Generate answers the prompt with Gemini, replaying the history as a chat session
func (g *Gemini) Generate(ctx context.Context, req providers.Request) (string, error) {
	if g.apiKey == "" {
		return "", providers.Failure(name, fmt.Errorf("gemini API key not configured"))
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", providers.Failure(name, fmt.Errorf("failed to create new gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))

	cs := model.StartChat()
	cs.History = convertHistory(req.History)

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.ImageData(imageFormat(req.Image.MIMEType), req.Image.Data))
	}

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", classify(fmt.Errorf("failed to generate content: %w", err))
	}

	if len(resp.Candidates) == 0 {
		return "", providers.Failure(name, fmt.Errorf("no candidates returned from Gemini"))
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", providers.Failure(name, fmt.Errorf("empty content returned from Gemini"))
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", providers.Failure(name, fmt.Errorf("unexpected response format from Gemini"))
	}

	return sb.String(), nil
}

func convertHistory(turns []providers.Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == providers.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return history
}

// imageFormat maps a MIME type to the short format genai.ImageData expects
func imageFormat(mimeType string) string {
	if f, ok := strings.CutPrefix(mimeType, "image/"); ok {
		return f
	}
	return "jpeg"
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return providers.Quota(name, err)
	}
	// gRPC transport reports 429 as the ResourceExhausted status
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return providers.Quota(name, err)
	}
	return providers.Failure(name, err)
}
