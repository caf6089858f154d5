package conversion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cr3t-value"

type fakeStore struct {
	values map[string]string
	err    error
}

func (f fakeStore) Setting(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stagedDocx(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sku_1.docx")
	require.NoError(t, os.WriteFile(p, []byte("PK fake docx"), 0o600))
	return p
}

func okInspector([]byte) (int, error) { return 2, nil }

func TestChainResolver_PrefersSettingsStore(t *testing.T) {
	chain := ChainResolver{
		SettingsResolver{Store: fakeStore{values: map[string]string{DefaultCredentialKey: "from-store"}}, Key: DefaultCredentialKey},
		EnvResolver{Name: DefaultCredentialKey, lookup: envFrom(map[string]string{DefaultCredentialKey: "from-env"})},
	}

	s, err := chain.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-store", s.value)
}

func TestChainResolver_FallsBackToEnvironment(t *testing.T) {
	tests := []struct {
		name  string
		store fakeStore
	}{
		{"missing key", fakeStore{values: map[string]string{}}},
		{"blank value", fakeStore{values: map[string]string{DefaultCredentialKey: "   "}}},
		{"store unavailable", fakeStore{err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := ChainResolver{
				SettingsResolver{Store: tt.store, Key: DefaultCredentialKey, Logger: quietLogger()},
				EnvResolver{Name: DefaultCredentialKey, lookup: envFrom(map[string]string{DefaultCredentialKey: "from-env"})},
			}
			s, err := chain.Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "from-env", s.value)
		})
	}
}

func TestChainResolver_NotConfigured(t *testing.T) {
	chain := ChainResolver{
		SettingsResolver{Store: fakeStore{}, Key: DefaultCredentialKey},
		EnvResolver{Name: DefaultCredentialKey, lookup: envFrom(nil)},
	}
	_, err := chain.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	c := NewClient("", chain, quietLogger())
	_, err = c.Open(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSecret_NeverFormatsValue(t *testing.T) {
	s := NewSecret(testSecret)
	assert.NotContains(t, fmt.Sprintf("%v %s %+v %#v", s, s, s, s), testSecret)

	var buf strings.Builder
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("resolved", "secret", s)
	assert.NotContains(t, buf.String(), testSecret)
}

func newSession(t *testing.T, url string, opts ...Option) *Session {
	t.Helper()
	resolver := EnvResolver{Name: DefaultCredentialKey, lookup: envFrom(map[string]string{DefaultCredentialKey: testSecret})}
	c := NewClient(url, resolver, quietLogger(), append([]Option{WithInspector(okInspector)}, opts...)...)
	s, err := c.Open(context.Background())
	require.NoError(t, err)
	return s
}

func TestConvertFile_Success(t *testing.T) {
	pdf := []byte("%PDF-1.7 converted")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert/docx/to/pdf", r.URL.Path)
		assert.Equal(t, "Bearer "+testSecret, r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("File")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "sku_1.docx", hdr.Filename)
		assert.Equal(t, "false", r.FormValue("StoreFile"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"ConversionCost": 1,
			"Files": []map[string]any{{
				"FileName": "sku_1.pdf",
				"FileExt":  "pdf",
				"FileSize": len(pdf),
				"FileData": base64.StdEncoding.EncodeToString(pdf),
			}},
		})
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "sku_1.pdf")
	res, err := newSession(t, srv.URL).ConvertFile(context.Background(), stagedDocx(t), dst)
	require.NoError(t, err)

	assert.Equal(t, dst, res.Path)
	assert.Equal(t, int64(len(pdf)), res.Size)
	assert.Equal(t, 2, res.Pages)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)
}

func TestConvertFile_RemoteErrorIsScrubbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprintf(w, `{"Code":4010,"Message":"Invalid secret %s"}`, testSecret)
	}))
	defer srv.Close()

	_, err := newSession(t, srv.URL).ConvertFile(context.Background(), stagedDocx(t), filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "401")
	assert.NotContains(t, err.Error(), testSecret)
}

func TestConvertFile_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	dst := filepath.Join(t.TempDir(), "out.pdf")
	_, err := newSession(t, srv.URL).ConvertFile(ctx, stagedDocx(t), dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, dst)
}

func TestConvertFile_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway</html>"},
		{"no files", `{"Files":[]}`},
		{"bad base64", `{"Files":[{"FileName":"x.pdf","FileData":"***"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newSession(t, srv.URL).ConvertFile(context.Background(), stagedDocx(t), filepath.Join(t.TempDir(), "out.pdf"))
			assert.ErrorIs(t, err, ErrFailed)
		})
	}
}

func TestConvertFile_RejectsNonPDFOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Files": []map[string]any{{"FileName": "x.pdf", "FileData": base64.StdEncoding.EncodeToString([]byte("definitely not a pdf"))}},
		})
	}))
	defer srv.Close()

	resolver := EnvResolver{Name: DefaultCredentialKey, lookup: envFrom(map[string]string{DefaultCredentialKey: testSecret})}
	s, err := NewClient(srv.URL, resolver, quietLogger()).Open(context.Background())
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out.pdf")
	_, err = s.ConvertFile(context.Background(), stagedDocx(t), dst)
	assert.ErrorIs(t, err, ErrFailed)
	assert.NoFileExists(t, dst)
}

func TestConvertFile_MissingSource(t *testing.T) {
	s := newSession(t, "http://127.0.0.1:1")
	_, err := s.ConvertFile(context.Background(), filepath.Join(t.TempDir(), "absent.docx"), "out.pdf")
	assert.ErrorIs(t, err, ErrFailed)
}

func TestInspectPDF_Empty(t *testing.T) {
	_, err := InspectPDF(nil)
	assert.Error(t, err)
}
