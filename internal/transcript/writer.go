package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Format is an export encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name or file extension
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported transcript format: %s (supported: json, yaml, parquet)", s)
	}
}

// ContentType returns the HTTP content type for f
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/json"
	}
}

// Write encodes t to w. Parquet output holds only the messages, one row each.
func Write(w io.Writer, t *Transcript, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	case FormatYAML:
		data, err := yaml.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write YAML: %w", err)
		}
	case FormatParquet:
		if err := parquet.Write(w, t.Rows()); err != nil {
			return fmt.Errorf("failed to write parquet: %w", err)
		}
	default:
		return fmt.Errorf("unsupported transcript format: %s", format)
	}

	slog.Debug("Transcript written", "session_id", t.SessionID, "format", format, "messages", len(t.Messages))
	return nil
}

// ReadJSON decodes a transcript previously written as JSON
func ReadJSON(r io.Reader) (*Transcript, error) {
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &t, nil
}

// ReadParquet reads message rows back from a Parquet export
func ReadParquet(r io.ReaderAt, size int64) ([]MessageRow, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[MessageRow](pf)
	defer reader.Close()

	var records []MessageRow
	rows := make([]MessageRow, 128)
	for {
		n, err := reader.Read(rows)
		if n > 0 {
			records = append(records, rows[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	return records, nil
}

// ReadFile loads a JSON or Parquet transcript, picking the reader from the
// file extension.
func ReadFile(path string) (*Transcript, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		return ReadJSON(f)
	case FormatParquet:
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat transcript: %w", err)
		}
		rows, err := ReadParquet(f, info.Size())
		if err != nil {
			return nil, err
		}
		return FromRows(rows), nil
	default:
		return nil, fmt.Errorf("unsupported transcript input format: %s (supported: json, parquet)", format)
	}
}
