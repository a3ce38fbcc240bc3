package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/imagechat/internal/logging"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "imagechat",
		Short: "Chat with a multimodal LLM about uploaded images",
		Long: `Imagechat lets you upload images, pick the active one, and talk to a
vision-capable LLM (Gemini, OpenAI or Ollama) about it.

Each session keeps its own transcript and image set in memory; nothing is
persisted once the session ends.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if !cmd.Flags().Changed("log-level") {
				if env := os.Getenv("LOG_LEVEL"); env != "" {
					logLevel = env
				}
			}
			logging.Setup(cmd.ErrOrStderr(), logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}
