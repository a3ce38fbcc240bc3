// Package credentials looks up API keys, preferring a secrets file over the environment.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrMissingCredential = errors.New("credential not found")

// DefaultSecretsPaths are searched in order when no secrets file is given
var DefaultSecretsPaths = []string{
	".streamlit/secrets.toml",
	"secrets.toml",
}

// Source reports where a credential was found
type Source string

const (
	SourceSecrets Source = "secrets"
	SourceEnv     Source = "env"
)

// Resolver finds credentials in a secrets file and then in the environment.
type Resolver struct {
	paths  []string
	lookup func(string) (string, bool)
}

// NewResolver searches secretsPath if set, otherwise DefaultSecretsPaths.
func NewResolver(secretsPath string) *Resolver {
	paths := DefaultSecretsPaths
	if secretsPath != "" {
		paths = []string{secretsPath}
	}
	return &Resolver{
		paths:  paths,
		lookup: os.LookupEnv,
	}
}

// Resolve returns the value of name and where it came from.
func (r *Resolver) Resolve(name string) (string, Source, error) {
	for _, path := range r.paths {
		value, err := readSecret(path, name)
		if err != nil {
			return "", "", err
		}
		if value != "" {
			slog.Debug("Credential loaded from secrets file", "name", name, "path", path)
			return value, SourceSecrets, nil
		}
	}

	if value, ok := r.lookup(name); ok && strings.TrimSpace(value) != "" {
		slog.Debug("Credential loaded from environment", "name", name)
		return strings.TrimSpace(value), SourceEnv, nil
	}

	return "", "", fmt.Errorf("%w: %s is not set in %s or the environment (.env)", ErrMissingCredential, name, strings.Join(r.paths, ", "))
}

// readSecret returns "" with no error when the file does not exist or lacks name
func readSecret(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	var secrets map[string]any
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}

	value, ok := secrets[name].(string)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(value), nil
}
