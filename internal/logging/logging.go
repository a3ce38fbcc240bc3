// Package logging routes log/slog through a charmbracelet/log handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Setup installs the default slog logger at the given level ("debug",
// "info", "warn", "error"). Unknown levels fall back to info.
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := charmlog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = charmlog.InfoLevel
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "imagechat",
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
