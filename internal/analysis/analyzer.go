package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

// Generator is the subset of the assistant service the analyzer needs
type Generator interface {
	Generate(ctx context.Context, prompt string, history []providers.Turn, img *providers.Image) (string, error)
}

// Analyzer asks the model to describe an image once, at upload time
type Analyzer struct {
	generator Generator
}

func New(generator Generator) *Analyzer {
	return &Analyzer{generator: generator}
}

// Analyze returns the description, caption, tags and story for img
func (a *Analyzer) Analyze(ctx context.Context, img *providers.Image) (*models.Analysis, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to analyze")
	}

	response, err := a.generator.Generate(ctx, buildAnalysisPrompt(), nil, img)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}

	analysis := ParseResponse(response)
	slog.Info("Image analyzed", "caption", analysis.Caption, "tags", len(analysis.Tags))
	return analysis, nil
}

func buildAnalysisPrompt() string {
	return `You are an expert image analyst. Look carefully at the attached image.

INSTRUCTIONS:
1. Describe the image in detail: subjects, setting, colors, text, and anything notable.
2. Write a short caption of at most one sentence.
3. List between three and ten single-word or short-phrase tags.
4. Write a short story (three to five sentences) inspired by the image.
5. Do not invent text that is not visible in the image.

OUTPUT FORMAT:
Respond with ONLY a JSON object in the following format:

{
  "description": "...",
  "caption": "...",
  "tags": ["...", "..."],
  "story": "..."
}`
}

// ParseResponse extracts the analysis from a model response. Markdown code
// fences are stripped; if the response still is not JSON the raw text becomes
// the description.
func ParseResponse(response string) *models.Analysis {
	var result struct {
		Description string   `json:"description"`
		Caption     string   `json:"caption"`
		Tags        []string `json:"tags"`
		Story       string   `json:"story"`
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if err := json.Unmarshal([]byte(response), &result); err != nil {
		slog.Warn("Failed to parse JSON analysis, using raw output", "error", err)
		return &models.Analysis{Description: response}
	}

	tags := make([]string, 0, len(result.Tags))
	for _, t := range result.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return &models.Analysis{
		Description: strings.TrimSpace(result.Description),
		Caption:     strings.TrimSpace(result.Caption),
		Tags:        tags,
		Story:       strings.TrimSpace(result.Story),
	}
}
