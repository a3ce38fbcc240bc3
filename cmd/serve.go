package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/imagechat/internal/handlers"
	"github.com/lehigh-university-libraries/imagechat/internal/images"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var staticDir string
	var flags modelFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the image chat interface",
		Long: `Starts the Imagechat web interface on the specified port.

The web interface allows you to upload images, select the active one and
chat about it with a vision-capable LLM (Gemini, OpenAI or Ollama).

The provider API key is read from secrets.toml first and then from the
environment (including a local .env file). The server refuses to start
without it.`,
		Example: `  # Start server on default port 8888 with Gemini
  imagechat serve

  # Start server on custom port with a local Ollama model
  imagechat serve --port 3000 --provider ollama --model llava:13b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := flags.service()
			if err != nil {
				return err
			}

			sessions := storage.New(flags.storeFactory(svc))
			handler := handlers.New(sessions, images.NewFetcher(), handlers.Options{
				Provider:  svc.Provider(),
				Model:     svc.Model(),
				StaticDir: staticDir,
			})

			// Set up routes
			mux := http.NewServeMux()
			handler.Routes(mux)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Imagechat interface available", "addr", addr, "url", "http://localhost"+addr, "provider", svc.Provider(), "model", svc.Model())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&staticDir, "static", "static", "Directory holding the web interface")
	flags.bind(cmd)

	return cmd
}
