package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// DefaultCredentialKey is both the settings key and the environment variable holding the
// conversion service secret.
const DefaultCredentialKey = "CONVERTAPI_SECRET"

const redacted = "[REDACTED]"

// Secret holds a credential. It never prints its value.
type Secret struct {
	value string
}

// NewSecret wraps a raw credential value.
func NewSecret(v string) Secret {
	return Secret{value: strings.TrimSpace(v)}
}

// Empty reports whether the secret has no value.
func (s Secret) Empty() bool { return s.value == "" }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// LogValue keeps the value out of slog output.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// scrub removes the secret from text coming back from the remote service.
func (s Secret) scrub(text string) string {
	if s.value == "" {
		return text
	}
	return strings.ReplaceAll(text, s.value, redacted)
}

// CredentialResolver finds the conversion credential. Implementations return an error wrapping
// ErrNotConfigured when they have no value.
type CredentialResolver interface {
	Resolve(ctx context.Context) (Secret, error)
}

// SettingsStore is a per-deployment key/value settings store.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
}

// SettingsResolver reads the credential from a SettingsStore. Store failures are logged and
// reported as not configured so the next tier is tried.
type SettingsResolver struct {
	Store  SettingsStore
	Key    string
	Logger *slog.Logger
}

func (r SettingsResolver) Resolve(ctx context.Context) (Secret, error) {
	if r.Store == nil {
		return Secret{}, fmt.Errorf("%w: no settings store", ErrNotConfigured)
	}
	v, ok, err := r.Store.Setting(ctx, r.Key)
	if err != nil {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Failed to read conversion credential from settings store", "key", r.Key, "error", err)
		return Secret{}, fmt.Errorf("%w: settings store unavailable", ErrNotConfigured)
	}
	s := NewSecret(v)
	if !ok || s.Empty() {
		return Secret{}, fmt.Errorf("%w: setting %s not set", ErrNotConfigured, r.Key)
	}
	return s, nil
}

// EnvResolver reads the credential from a process environment variable.
type EnvResolver struct {
	Name   string
	lookup func(string) (string, bool)
}

func (r EnvResolver) Resolve(context.Context) (Secret, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(r.Name)
	s := NewSecret(v)
	if s.Empty() {
		return Secret{}, fmt.Errorf("%w: environment variable %s not set", ErrNotConfigured, r.Name)
	}
	return s, nil
}

// ChainResolver tries each resolver in order and returns the first credential found.
type ChainResolver []CredentialResolver

func (c ChainResolver) Resolve(ctx context.Context) (Secret, error) {
	for _, r := range c {
		s, err := r.Resolve(ctx)
		if err == nil && !s.Empty() {
			return s, nil
		}
		if err != nil && !errors.Is(err, ErrNotConfigured) {
			return Secret{}, err
		}
	}
	return Secret{}, ErrNotConfigured
}

// NewResolver builds the standard two-tier lookup: the settings store (if any), then the
// environment variable of the same name.
func NewResolver(store SettingsStore, key string, logger *slog.Logger) ChainResolver {
	if key == "" {
		key = DefaultCredentialKey
	}
	var chain ChainResolver
	if store != nil {
		chain = append(chain, SettingsResolver{Store: store, Key: key, Logger: logger})
	}
	return append(chain, EnvResolver{Name: key})
}
