// Package gcp holds Cloud Storage and Firestore helpers.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/kelurahandocs/internal/render"
)

// NewStorageClient creates a Cloud Storage client. A non-empty credentialsFile is used instead of
// application default credentials.
func NewStorageClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// objectReader opens an object for reading.
type objectReader func(ctx context.Context, object string) (io.ReadCloser, error)

// TemplateBucket loads DOCX templates from a Cloud Storage bucket, optionally under a prefix.
type TemplateBucket struct {
	name   string
	prefix string
	open   objectReader
}

// NewTemplateBucket returns a render.Source backed by bucket.
func NewTemplateBucket(client *storage.Client, bucket, prefix string) *TemplateBucket {
	handle := client.Bucket(bucket)
	return &TemplateBucket{
		name:   bucket,
		prefix: strings.Trim(prefix, "/"),
		open: func(ctx context.Context, object string) (io.ReadCloser, error) {
			return handle.Object(object).NewReader(ctx)
		},
	}
}

var _ render.Source = (*TemplateBucket)(nil)

func (b *TemplateBucket) Load(ctx context.Context, templateID string) ([]byte, error) {
	if templateID == "" || strings.Contains(templateID, "..") {
		return nil, fmt.Errorf("%w: %q", render.ErrTemplateNotFound, templateID)
	}
	object := templateID
	if b.prefix != "" {
		object = path.Join(b.prefix, templateID)
	}

	r, err := b.open(ctx, object)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", render.ErrTemplateNotFound, b.name, object)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open template gs://%s/%s: %w", b.name, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read template gs://%s/%s: %w", b.name, object, err)
	}
	return data, nil
}
