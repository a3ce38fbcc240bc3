package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrQuotaExceeded marks a model error caused by rate limiting or an exhausted quota.
var ErrQuotaExceeded = errors.New("model quota exceeded")

// Role identifies the author of a history turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message sent as context
type Turn struct {
	Role    Role
	Content string
}

// Image is an already-normalized image payload attached to a prompt
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the payload as standard base64
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the payload as a data: URL
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// Request represents one generation request to an LLM provider
type Request struct {
	Model       string
	Temperature float64
	Prompt      string
	History     []Turn
	Image       *Image
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Kind classifies a ModelError
type Kind int

const (
	KindOther Kind = iota
	KindQuota
)

// ModelError is returned by providers when the remote call fails.
type ModelError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func (e *ModelError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.Kind == KindQuota
}

// Quota wraps err as a quota failure for provider
func Quota(provider string, err error) error {
	return &ModelError{Provider: provider, Kind: KindQuota, Err: err}
}

// Failure wraps err as a generic model failure for provider
func Failure(provider string, err error) error {
	return &ModelError{Provider: provider, Kind: KindOther, Err: err}
}

// IsQuota reports whether err is a quota failure
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
