package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lehigh-university-libraries/imagechat/internal/gemini"
	"github.com/lehigh-university-libraries/imagechat/internal/ollama"
	"github.com/lehigh-university-libraries/imagechat/internal/openai"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

const (
	DefaultProvider    = "gemini"
	DefaultTemperature = 0.4
	DefaultTimeout     = 60 * time.Second
)

// Config selects and tunes the model behind a Service
type Config struct {
	Provider    string
	Model       string
	Credential  string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// Service sends prompts to the configured provider with a bounded wait per call.
type Service struct {
	provider    providers.Provider
	model       string
	temperature float64
	timeout     time.Duration
}

// NewService resolves the provider named in config, filling in defaults
// from the environment the same way for every provider.
func NewService(config Config) (*Service, error) {
	if config.Provider == "" {
		config.Provider = os.Getenv("IMAGECHAT_PROVIDER")
		if config.Provider == "" {
			config.Provider = DefaultProvider
		}
	}

	if config.Model == "" {
		config.Model = DefaultModel(config.Provider)
	}

	var p providers.Provider
	switch config.Provider {
	case "gemini":
		p = gemini.New(config.Credential)
	case "openai":
		p = openai.New(config.Credential, config.BaseURL)
	case "ollama":
		p = ollama.New(config.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}

	return NewServiceWithProvider(p, config), nil
}

// NewServiceWithProvider wraps an already constructed provider
func NewServiceWithProvider(p providers.Provider, config Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Service{
		provider:    p,
		model:       config.Model,
		temperature: config.Temperature,
		timeout:     config.Timeout,
	}
}

// DefaultModel returns the model used when none is given for provider
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			return "gemini-1.5-flash"
		}
		return model
	case "openai":
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			return "gpt-4o-mini"
		}
		return model
	case "ollama":
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			return "llava:13b"
		}
		return model
	default:
		return ""
	}
}

// RequiresCredential reports whether provider needs an API key
func RequiresCredential(provider string) bool {
	return provider != "ollama"
}

// CredentialName is the secret/env key holding provider's API key
func CredentialName(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

func (s *Service) Provider() string {
	return s.provider.Name()
}

func (s *Service) Model() string {
	return s.model
}

// Generate sends one prompt with its history and optional image
func (s *Service) Generate(ctx context.Context, prompt string, history []providers.Turn, img *providers.Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.provider.Generate(ctx, providers.Request{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      prompt,
		History:     history,
		Image:       img,
	})
	if err != nil {
		return "", err
	}

	slog.Info("Generated reply", "provider", s.provider.Name(), "model", s.model, "with_image", img != nil, "length", len(text), "duration", time.Since(start))
	return text, nil
}
