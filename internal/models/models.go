package models

import "time"

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the known senders
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message is one entry of a conversation transcript
type Message struct {
	Sender    Sender    `json:"sender" yaml:"sender"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Analysis holds the text derived from an image when it is ingested
type Analysis struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Caption     string   `json:"caption,omitempty" yaml:"caption,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Story       string   `json:"story,omitempty" yaml:"story,omitempty"`
}

// Image represents an uploaded image after normalization
type Image struct {
	Key          string    `json:"key"`
	Data         []byte    `json:"-"`
	MIMEType     string    `json:"mime_type"`
	SourceFormat string    `json:"source_format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	OriginalSize int       `json:"original_size"`
	Size         int       `json:"size"`
	Analysis     *Analysis `json:"analysis,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ChatSession is the JSON view of one session
type ChatSession struct {
	ID          string    `json:"id"`
	Messages    []Message `json:"messages"`
	Images      []Image   `json:"images"`
	ActiveImage string    `json:"active_image,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
