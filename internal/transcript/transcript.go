// Package transcript exports a session's conversation as JSON, YAML or Parquet.
package transcript

import (
	"sort"
	"time"

	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
	"github.com/lehigh-university-libraries/imagechat/internal/models"
)

// ImageSummary describes an image without its payload
type ImageSummary struct {
	Key      string           `json:"key" yaml:"key"`
	MIMEType string           `json:"mime_type" yaml:"mimetype"`
	Width    int              `json:"width" yaml:"width"`
	Height   int              `json:"height" yaml:"height"`
	Size     int              `json:"size" yaml:"size"`
	Analysis *models.Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// Transcript is the exported form of one session
type Transcript struct {
	SessionID   string           `json:"session_id" yaml:"sessionid"`
	ExportedAt  time.Time        `json:"exported_at" yaml:"exportedat"`
	ActiveImage string           `json:"active_image,omitempty" yaml:"activeimage,omitempty"`
	Messages    []models.Message `json:"messages" yaml:"messages"`
	Images      []ImageSummary   `json:"images" yaml:"images"`
}

// MessageRow is one Parquet row
type MessageRow struct {
	SessionID   string `parquet:"session_id"`
	Index       int64  `parquet:"index"`
	Sender      string `parquet:"sender"`
	Content     string `parquet:"content"`
	CreatedAtMS int64  `parquet:"created_at_ms"`
}

// Build snapshots store into a Transcript
func Build(sessionID string, store *conversation.Store) *Transcript {
	t := &Transcript{
		SessionID:   sessionID,
		ExportedAt:  time.Now().UTC(),
		ActiveImage: store.ActiveKey(),
		Messages:    store.Messages(),
	}

	images := store.Images()
	t.Images = make([]ImageSummary, 0, len(images))
	for _, img := range images {
		t.Images = append(t.Images, ImageSummary{
			Key:      img.Key,
			MIMEType: img.MIMEType,
			Width:    img.Width,
			Height:   img.Height,
			Size:     img.Size,
			Analysis: img.Analysis,
		})
	}

	return t
}

// Rows flattens the messages for columnar output
func (t *Transcript) Rows() []MessageRow {
	rows := make([]MessageRow, 0, len(t.Messages))
	for i, m := range t.Messages {
		rows = append(rows, MessageRow{
			SessionID:   t.SessionID,
			Index:       int64(i),
			Sender:      string(m.Sender),
			Content:     m.Content,
			CreatedAtMS: m.CreatedAt.UnixMilli(),
		})
	}
	return rows
}

// FromRows rebuilds a transcript from Parquet rows. Image summaries are not
// stored in Parquet, so the result carries messages only.
func FromRows(rows []MessageRow) *Transcript {
	sorted := append([]MessageRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	t := &Transcript{
		ExportedAt: time.Now().UTC(),
		Messages:   make([]models.Message, 0, len(sorted)),
		Images:     []ImageSummary{},
	}
	for _, row := range sorted {
		if t.SessionID == "" {
			t.SessionID = row.SessionID
		}
		t.Messages = append(t.Messages, models.Message{
			Sender:    models.Sender(row.Sender),
			Content:   row.Content,
			CreatedAt: time.UnixMilli(row.CreatedAtMS).UTC(),
		})
	}
	return t
}
