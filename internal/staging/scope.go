// Package staging manages on-disk intermediate files for a single pipeline chain.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Scope hands out unique staging paths inside its own chain directory and removes the directory
// on Cleanup.
type Scope struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	paths []string
	seen  map[string]struct{}
}

// New creates a Scope with a fresh chain-* directory under root. An empty root uses os.TempDir().
func New(root string, logger *slog.Logger) (*Scope, error) {
	if root == "" {
		root = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := os.MkdirTemp(root, "chain-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory under %s: %w", root, err)
	}
	return &Scope{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}, nil
}

// Dir returns the chain directory holding every path of this scope.
func (s *Scope) Dir() string { return s.dir }

// Path allocates a path named {purpose}_{timestamp}{ext}. The file is not created.
func (s *Scope) Path(purpose, ext string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := sanitizePurpose(purpose) + "_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	name := base + ext
	for n := 1; ; n++ {
		if _, dup := s.seen[name]; !dup {
			break
		}
		name = base + "-" + strconv.Itoa(n) + ext
	}
	s.seen[name] = struct{}{}

	p := filepath.Join(s.dir, name)
	s.paths = append(s.paths, p)
	return p
}

// WriteFile allocates a path and writes data to it.
func (s *Scope) WriteFile(purpose, ext string, data []byte) (string, error) {
	p := s.Path(purpose, ext)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write staging file %s: %w", p, err)
	}
	return p, nil
}

// Paths returns the paths allocated so far.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Cleanup removes the chain directory with every allocated path in it. Failures are only logged.
// Calling Cleanup again is safe.
func (s *Scope) Cleanup() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to remove staging directory", "dir", s.dir, "error", err)
		return
	}
	if len(paths) > 0 {
		s.logger.Debug("Staging files cleaned up.", "dir", s.dir, "count", len(paths))
	}
}

// WithScope runs fn with a fresh Scope and cleans up every path it allocated when fn returns,
// fails or panics. Cleanup never changes fn's result.
func WithScope[T any](ctx context.Context, dir string, logger *slog.Logger, fn func(ctx context.Context, s *Scope) (T, error)) (T, error) {
	s, err := New(dir, logger)
	if err != nil {
		var zero T
		return zero, err
	}
	defer s.Cleanup()
	return fn(ctx, s)
}

func sanitizePurpose(purpose string) string {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return "staging"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, purpose)
}
