package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
)

func TestCloudEventsNotifier_DocumentArchived(t *testing.T) {
	var (
		gotType string
		gotData ArchivedData
	)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Ce-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotData)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	n, err := NewCloudEventsNotifier(sink.URL, "", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	entry := &models.ArchiveEntry{
		ID:           9,
		Number:       "470/1/2025",
		DocumentType: "SKTM",
		Subject:      models.Subject{Name: "Siti"},
		ObjectID:     "pdf_surat/sktm/Siti_SKTM_1.pdf",
	}
	require.NoError(t, n.DocumentArchived(context.Background(), entry))

	assert.Equal(t, TypeDocumentArchived, gotType)
	assert.Equal(t, int64(9), gotData.ArchiveID)
	assert.Equal(t, "470/1/2025", gotData.Number)
	assert.Equal(t, "pdf_surat/sktm/Siti_SKTM_1.pdf", gotData.ObjectID)
}

func TestCloudEventsNotifier_SinkRejects(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	n, err := NewCloudEventsNotifier(sink.URL, "", 0, nil)
	require.NoError(t, err)
	assert.Error(t, n.DocumentArchived(context.Background(), &models.ArchiveEntry{ID: 1}))
}

func TestCloudEventsNotifier_StalledSinkTimesOut(t *testing.T) {
	release := make(chan struct{})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer sink.Close()
	defer close(release)

	n, err := NewCloudEventsNotifier(sink.URL, "", 50*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	err = n.DocumentArchived(context.Background(), &models.ArchiveEntry{ID: 2})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.DocumentArchived(context.Background(), &models.ArchiveEntry{}))
}
