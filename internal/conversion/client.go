// Package conversion talks to the external DOCX to PDF conversion service (ConvertAPI).
package conversion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBaseURL is the public ConvertAPI endpoint.
const DefaultBaseURL = "https://v2.convertapi.com"

const maxErrorBody = 4 << 10

var (
	// ErrNotConfigured means no conversion credential was found in any tier.
	ErrNotConfigured = errors.New("conversion service not configured")
	// ErrFailed wraps every network, remote, timeout or malformed-response failure.
	ErrFailed = errors.New("conversion failed")
)

// Client converts rendered documents through the remote service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	resolver   CredentialResolver
	logger     *slog.Logger
	inspect    func([]byte) (int, error)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithInspector replaces the check applied to converted output.
func WithInspector(fn func([]byte) (int, error)) Option {
	return func(c *Client) { c.inspect = fn }
}

// NewClient creates a Client. The resolver is consulted every time a Session is opened.
func NewClient(baseURL string, resolver CredentialResolver, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		resolver:   resolver,
		logger:     logger,
		inspect:    InspectPDF,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is a Client bound to a resolved credential.
type Session struct {
	client *Client
	secret Secret
}

// Open resolves the credential. It fails with ErrNotConfigured when no tier has one.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	if c.resolver == nil {
		return nil, ErrNotConfigured
	}
	secret, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, secret: secret}, nil
}

// Result describes a converted file written to disk.
type Result struct {
	Path     string
	FileName string
	Size     int64
	Pages    int
}

type convertResponse struct {
	ConversionCost int `json:"ConversionCost"`
	Files          []struct {
		FileName string `json:"FileName"`
		FileExt  string `json:"FileExt"`
		FileSize int64  `json:"FileSize"`
		FileData string `json:"FileData"`
	} `json:"Files"`
}

type errorResponse struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

// ConvertFile converts the DOCX at src to PDF and writes the result to dst. The deadline of ctx
// bounds the remote call; on expiry the error wraps both ErrFailed and context.DeadlineExceeded.
func (s *Session) ConvertFile(ctx context.Context, src, dst string) (*Result, error) {
	c := s.client
	logCtx := c.logger.With("source", filepath.Base(src))

	body, contentType, err := multipartBody(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert/docx/to/pdf", body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.secret.value)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logCtx.Error("Conversion request failed", "error", err, "elapsed", time.Since(start).String())
		return nil, fmt.Errorf("%w: %w", ErrFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := s.remoteMessage(resp)
		logCtx.Error("Conversion service returned an error", "status", resp.StatusCode, "message", msg)
		return nil, fmt.Errorf("%w: service returned %d: %s", ErrFailed, resp.StatusCode, msg)
	}

	var parsed convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrFailed, err)
	}
	if len(parsed.Files) == 0 || parsed.Files[0].FileData == "" {
		return nil, fmt.Errorf("%w: malformed response: no files returned", ErrFailed)
	}
	file := parsed.Files[0]
	data, err := base64.StdEncoding.DecodeString(file.FileData)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed response: file data: %v", ErrFailed, err)
	}

	pages, err := c.inspect(data)
	if err != nil {
		return nil, fmt.Errorf("%w: converted output rejected: %v", ErrFailed, err)
	}

	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: failed to write converted file: %v", ErrFailed, err)
	}

	logCtx.Info("Document converted.", "bytes", len(data), "pages", pages, "cost", parsed.ConversionCost, "elapsed", time.Since(start).String())
	return &Result{
		Path:     dst,
		FileName: file.FileName,
		Size:     int64(len(data)),
		Pages:    pages,
	}, nil
}

func (s *Session) remoteMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er errorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
		msg = er.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return s.secret.scrub(msg)
}

func multipartBody(src string) (io.Reader, string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, "", fmt.Errorf("could not open rendered file %s: %w", src, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("File", filepath.Base(src))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read rendered file: %w", err)
	}
	if err := mw.WriteField("StoreFile", "false"); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
