// Package publish stores converted documents in Cloud Storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// DefaultPublicBaseURL serves objects of publicly readable buckets.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// ErrStorage wraps every failed upload.
var ErrStorage = errors.New("storage upload failed")

var errAlreadyExists = errors.New("object already exists")

var whitespace = regexp.MustCompile(`\s+`)

// StoredObject describes an uploaded object.
type StoredObject struct {
	ID          string
	Bucket      string
	Path        string
	URL         string
	Size        int64
	ContentType string
	Generation  int64
}

// Config controls upload behaviour.
type Config struct {
	PublicBaseURL string
	SignedURLTTL  time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	WriteTimeout  time.Duration
}

type putFunc func(ctx context.Context, bucket, path, contentType string, data []byte) (int64, error)

type signFunc func(bucket, path string, expires time.Time) (string, error)

type statFunc func(ctx context.Context, bucket, path string) (*objectState, error)

// objectState is what an existing object is compared on after an ambiguous upload.
type objectState struct {
	Size       int64
	CRC32C     uint32
	Generation int64
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Publisher uploads documents. Objects are written once and never overwritten.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
	put    putFunc
	sign   signFunc
	stat   statFunc
}

// NewPublisher builds a Publisher on top of a Cloud Storage client.
func NewPublisher(client *storage.Client, cfg Config, logger *slog.Logger) *Publisher {
	p := newPublisher(cfg, logger)
	p.put = func(ctx context.Context, bucket, path, contentType string, data []byte) (int64, error) {
		return writeObject(ctx, client.Bucket(bucket).Object(path), contentType, data)
	}
	p.sign = func(bucket, path string, expires time.Time) (string, error) {
		return client.Bucket(bucket).SignedURL(path, &storage.SignedURLOptions{
			Method:  http.MethodGet,
			Expires: expires,
			Scheme:  storage.SigningSchemeV4,
		})
	}
	p.stat = func(ctx context.Context, bucket, path string) (*objectState, error) {
		attrs, err := client.Bucket(bucket).Object(path).Attrs(ctx)
		if err != nil {
			return nil, err
		}
		return &objectState{Size: attrs.Size, CRC32C: attrs.CRC32C, Generation: attrs.Generation}, nil
	}
	return p
}

func newPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = DefaultPublicBaseURL
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 50 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// ObjectPath builds {category}/{subject}_{tag}_{unixMillis}.pdf with whitespace runs in the
// subject replaced by underscores.
func ObjectPath(category, subject, tag string, ts time.Time) string {
	subject = whitespace.ReplaceAllString(strings.TrimSpace(subject), "_")
	if subject == "" {
		subject = "dokumen"
	}
	subject = strings.ReplaceAll(subject, "/", "_")
	return category + "/" + subject + "_" + tag + "_" + strconv.FormatInt(ts.UnixMilli(), 10) + ".pdf"
}

// Publish uploads data to bucket/path. Transient failures are retried with exponential backoff;
// an existing object at path is never replaced. When a retry finds the object already present
// and it matches data, the earlier attempt committed and the upload counts as done.
func (p *Publisher) Publish(ctx context.Context, data []byte, path, bucket, contentType string) (*StoredObject, error) {
	if bucket == "" || path == "" {
		return nil, fmt.Errorf("%w: bucket and path must be set", ErrStorage)
	}
	logCtx := p.logger.With("bucket", bucket, "gcsObject", path)

	backoff := p.cfg.Backoff
	var lastErr error
	for i := 0; i < p.cfg.MaxAttempts; i++ {
		gen, err := p.attempt(ctx, bucket, path, contentType, data)
		if errors.Is(err, errAlreadyExists) && i > 0 {
			if st, ok := p.committedEarlier(ctx, bucket, path, data, logCtx); ok {
				gen, err = st.Generation, nil
			}
		}
		if err == nil {
			obj := &StoredObject{
				ID:          bucket + "/" + path,
				Bucket:      bucket,
				Path:        path,
				URL:         p.objectURL(bucket, path),
				Size:        int64(len(data)),
				ContentType: contentType,
				Generation:  gen,
			}
			logCtx.Info("Document stored.", "bytes", obj.Size, "generation", gen)
			return obj, nil
		}
		if errors.Is(err, errAlreadyExists) {
			logCtx.Error("Object already exists, refusing to overwrite.")
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrStorage, bucket, path, err)
		}

		lastErr = err
		if i == p.cfg.MaxAttempts-1 {
			break
		}
		logCtx.Warn("Upload failed, will retry.",
			"attempt", i+1,
			"maxRetries", p.cfg.MaxAttempts,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logCtx.Error("Context cancelled during backoff. Aborting retries.", "error", ctx.Err())
			return nil, fmt.Errorf("%w: %w", ErrStorage, ctx.Err())
		}
	}
	logCtx.Error("Upload failed after all retries.", "error", lastErr)
	return nil, fmt.Errorf("%w: upload for %s failed after all retries: %w", ErrStorage, path, lastErr)
}

// committedEarlier reports whether the object at path holds exactly data.
func (p *Publisher) committedEarlier(ctx context.Context, bucket, path string, data []byte, logCtx *slog.Logger) (*objectState, bool) {
	if p.stat == nil {
		return nil, false
	}
	st, err := p.stat(ctx, bucket, path)
	if err != nil {
		logCtx.Warn("Failed to read attributes of existing object.", "error", err)
		return nil, false
	}
	if st.Size != int64(len(data)) || st.CRC32C != crc32.Checksum(data, castagnoli) {
		return nil, false
	}
	logCtx.Info("Previous attempt committed the object.", "generation", st.Generation)
	return st, true
}

func (p *Publisher) attempt(ctx context.Context, bucket, path, contentType string, data []byte) (int64, error) {
	writeCtx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()
	return p.put(writeCtx, bucket, path, contentType, data)
}

func (p *Publisher) objectURL(bucket, path string) string {
	if p.cfg.SignedURLTTL > 0 && p.sign != nil {
		u, err := p.sign(bucket, path, time.Now().Add(p.cfg.SignedURLTTL))
		if err == nil {
			return u
		}
		p.logger.Warn("Failed to sign object URL, using public URL.", "gcsObject", path, "error", err)
	}
	return p.cfg.PublicBaseURL + "/" + bucket + "/" + path
}

// writeObject performs a single create-only upload. Cancelling ctx before Close aborts the write
// so no partial object is committed.
func writeObject(ctx context.Context, obj *storage.ObjectHandle, contentType string, data []byte) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.ChunkSize = 0

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		cancel()
		_ = w.Close()
		return 0, classify(fmt.Errorf("io.Copy to GCS failed: %w", err))
	}
	if err := w.Close(); err != nil {
		return 0, classify(fmt.Errorf("failed to close GCS writer (finalize upload): %w", err))
	}
	return w.Attrs().Generation, nil
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %w", errAlreadyExists, err)
	}
	return err
}
