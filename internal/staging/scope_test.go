package staging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestScope_PathPattern(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, discardLogger())
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	p1 := s.Path("pengantar nikah", ".docx")
	p2 := s.Path("pengantar nikah", ".docx")

	assert.Equal(t, root, filepath.Dir(s.Dir()))
	assert.True(t, strings.HasPrefix(filepath.Base(s.Dir()), "chain-"))
	assert.Equal(t, filepath.Join(s.Dir(), "pengantar_nikah_1700000000123.docx"), p1)
	assert.Equal(t, filepath.Join(s.Dir(), "pengantar_nikah_1700000000123-1.docx"), p2)
	assert.Len(t, s.Paths(), 2)
}

func TestWithScope_ConcurrentScopesNeverSharePaths(t *testing.T) {
	root := t.TempDir()
	frozen := time.UnixMilli(1700000000123)

	const rounds = 50
	for i := 0; i < rounds; i++ {
		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			paths [2]string
			data  [2][]byte
		)
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				payload := []byte{byte('A' + g)}
				_, err := WithScope(context.Background(), root, discardLogger(), func(_ context.Context, s *Scope) (struct{}, error) {
					s.now = func() time.Time { return frozen }
					<-start
					p, err := s.WriteFile("sku", ".docx", payload)
					if err != nil {
						return struct{}{}, err
					}
					paths[g] = p
					// both scopes have written before either reads back
					time.Sleep(time.Millisecond)
					data[g], err = os.ReadFile(p)
					return struct{}{}, err
				})
				assert.NoError(t, err)
			}(g)
		}
		close(start)
		wg.Wait()

		require.NotEqual(t, paths[0], paths[1])
		assert.Equal(t, []byte("A"), data[0])
		assert.Equal(t, []byte("B"), data[1])
	}
	assert.Empty(t, dirEntries(t, root))
}

func TestNew_FailsWhenRootMissing(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), discardLogger())
	assert.Error(t, err)

	called := false
	_, err = WithScope(context.Background(), filepath.Join(t.TempDir(), "missing"), discardLogger(), func(_ context.Context, _ *Scope) (int, error) {
		called = true
		return 1, nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestWithScope_RemovesFilesOnSuccess(t *testing.T) {
	dir := t.TempDir()

	n, err := WithScope(context.Background(), dir, discardLogger(), func(_ context.Context, s *Scope) (int, error) {
		_, err := s.WriteFile("sku", ".docx", []byte("docx"))
		require.NoError(t, err)
		_, err = s.WriteFile("sku", ".pdf", []byte("pdf"))
		require.NoError(t, err)
		assert.Len(t, dirEntries(t, s.Dir()), 2)
		return 2, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, dirEntries(t, dir))
}

func TestWithScope_RemovesFilesOnError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("conversion failed")

	_, err := WithScope(context.Background(), dir, discardLogger(), func(_ context.Context, s *Scope) (string, error) {
		_, werr := s.WriteFile("sktm", ".docx", []byte("docx"))
		require.NoError(t, werr)
		// allocated but never written
		s.Path("sktm", ".pdf")
		return "", boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, dirEntries(t, dir))
}

func TestWithScope_RemovesFilesOnPanic(t *testing.T) {
	dir := t.TempDir()

	assert.Panics(t, func() {
		_, _ = WithScope(context.Background(), dir, discardLogger(), func(_ context.Context, s *Scope) (struct{}, error) {
			_, err := s.WriteFile("umum", ".docx", []byte("docx"))
			require.NoError(t, err)
			panic("renderer exploded")
		})
	})
	assert.Empty(t, dirEntries(t, dir))
}

func TestScope_CleanupIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir(), discardLogger())
	require.NoError(t, err)
	p, err := s.WriteFile("n1", ".pdf", []byte("x"))
	require.NoError(t, err)

	s.Cleanup()
	s.Cleanup()

	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, s.Paths())
}

func TestWithScope_RemovesNestedContent(t *testing.T) {
	dir := t.TempDir()

	got, err := WithScope(context.Background(), dir, discardLogger(), func(_ context.Context, s *Scope) (string, error) {
		p := s.Path("nested", "")
		require.NoError(t, os.MkdirAll(filepath.Join(p, "child"), 0o700))
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Empty(t, dirEntries(t, dir))
}
