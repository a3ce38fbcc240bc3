package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lehigh-university-libraries/imagechat/internal/analysis"
	"github.com/lehigh-university-libraries/imagechat/internal/assistant"
	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
	"github.com/lehigh-university-libraries/imagechat/internal/credentials"
	"github.com/lehigh-university-libraries/imagechat/internal/imaging"
	"github.com/spf13/cobra"
)

// modelFlags are shared by every command that talks to a model
type modelFlags struct {
	provider    string
	model       string
	baseURL     string
	secrets     string
	temperature float64
	timeout     time.Duration
	analyze     bool
}

func (f *modelFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider (gemini, openai, or ollama); defaults to $IMAGECHAT_PROVIDER or gemini")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name (defaults to provider's default)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the provider API base URL")
	cmd.Flags().StringVar(&f.secrets, "secrets", "", "Path to a secrets.toml file (defaults to .streamlit/secrets.toml, then secrets.toml)")
	cmd.Flags().Float64Var(&f.temperature, "temperature", assistant.DefaultTemperature, "Sampling temperature")
	cmd.Flags().DurationVar(&f.timeout, "timeout", assistant.DefaultTimeout, "Maximum wait for one model call")
	cmd.Flags().BoolVar(&f.analyze, "analyze", true, "Generate description, caption, tags and story for each uploaded image")
}

// service resolves the credential and builds the assistant. A missing
// credential is returned as an error so the command stops before serving.
func (f *modelFlags) service() (*assistant.Service, error) {
	provider := f.provider
	if provider == "" {
		provider = os.Getenv("IMAGECHAT_PROVIDER")
	}
	if provider == "" {
		provider = assistant.DefaultProvider
	}

	var credential string
	if assistant.RequiresCredential(provider) {
		name := assistant.CredentialName(provider)
		value, source, err := credentials.NewResolver(f.secrets).Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("🚨 %s is missing! Set it in secrets.toml or in a local .env file: %w", name, err)
		}
		slog.Info("Credential loaded", "name", name, "source", source)
		credential = value
	}

	return assistant.NewService(assistant.Config{
		Provider:    provider,
		Model:       f.model,
		Credential:  credential,
		BaseURL:     f.baseURL,
		Temperature: f.temperature,
		Timeout:     f.timeout,
	})
}

// storeFactory builds empty conversation stores wired to svc
func (f *modelFlags) storeFactory(svc *assistant.Service) func() *conversation.Store {
	decoder := imaging.NewDecoder(imaging.DefaultConfig())
	var analyzer conversation.Analyzer
	if f.analyze {
		analyzer = analysis.New(svc)
	}
	return func() *conversation.Store {
		return conversation.New(decoder, svc, analyzer)
	}
}
