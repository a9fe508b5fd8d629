// Package credentials resolves the vision API key.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "photo-enhancer"
	keyName     = "vision-api-key"
	// EnvVar is read when nothing is stored in the keyring or config
	EnvVar = "GEMINI_API_KEY"
)

// DefaultAPIKey is the build-time fallback, set with
// -ldflags "-X github.com/menta2k/photo-enhancer/internal/credentials.DefaultAPIKey=..."
var DefaultAPIKey = ""

var ErrNoAPIKey = errors.New("no API key configured")

// Source tells where a resolved key came from
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
	SourceBuild   Source = "build"
)

// Resolve returns the first key found in the OS keyring, cfgKey, the
// environment and DefaultAPIKey, in that order
func Resolve(cfgKey string) (string, Source, error) {
	if key, err := keyring.Get(serviceName, keyName); err == nil && strings.TrimSpace(key) != "" {
		return strings.TrimSpace(key), SourceKeyring, nil
	}
	if key := strings.TrimSpace(cfgKey); key != "" {
		return key, SourceConfig, nil
	}
	if key := strings.TrimSpace(os.Getenv(EnvVar)); key != "" {
		return key, SourceEnv, nil
	}
	if key := strings.TrimSpace(DefaultAPIKey); key != "" {
		return key, SourceBuild, nil
	}
	return "", "", ErrNoAPIKey
}

// Store saves key in the OS keyring
func Store(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	if err := keyring.Set(serviceName, keyName, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}

// Clear removes the stored key. Clearing when nothing is stored succeeds.
func Clear() error {
	if err := keyring.Delete(serviceName, keyName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}

// Mask hides all but the last four characters of key
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
