package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when the template blob does not exist. The pipeline cannot proceed.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidTemplate is returned when the blob is not a readable DOCX package.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Source loads template blobs by id (a file name such as "SKU.docx").
type Source interface {
	Load(ctx context.Context, templateID string) ([]byte, error)
}

// DirSource reads templates from a local directory.
type DirSource struct {
	Root string
}

// Load reads Root/templateID. Ids that try to escape Root are treated as missing.
func (s DirSource) Load(_ context.Context, templateID string) ([]byte, error) {
	clean := filepath.Clean("/" + templateID)
	if templateID == "" || strings.Contains(templateID, "..") {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}
	data, err := os.ReadFile(filepath.Join(s.Root, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return nil, fmt.Errorf("failed to read template %s: %w", templateID, err)
	}
	return data, nil
}
