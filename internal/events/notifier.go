// Package events publishes archive notifications as CloudEvents.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
)

// TypeDocumentArchived is the CloudEvent type sent after an archive entry is recorded.
const TypeDocumentArchived = "id.go.kelurahan.document.archived"

// DefaultSource is the CloudEvent source attribute.
const DefaultSource = "/kelurahan-docs/document-pipeline"

// DefaultSendTimeout bounds one delivery attempt when no timeout is configured.
const DefaultSendTimeout = 5 * time.Second

// ArchivedData is the event payload.
type ArchivedData struct {
	ArchiveID    int64  `json:"archiveId"`
	Number       string `json:"nomorSurat"`
	DocumentType string `json:"jenisDokumen"`
	SubjectName  string `json:"namaSubjek"`
	ObjectID     string `json:"objectId"`
	ObjectURL    string `json:"objectUrl"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	UnitID       *int64 `json:"kelurahanId,omitempty"`
	RecordedAt   string `json:"recordedAt"`
}

// Notifier is told about every archive entry that was recorded.
type Notifier interface {
	DocumentArchived(ctx context.Context, entry *models.ArchiveEntry) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) DocumentArchived(context.Context, *models.ArchiveEntry) error { return nil }

// CloudEventsNotifier sends structured events over HTTP to a fixed sink.
type CloudEventsNotifier struct {
	client  cloudevents.Client
	target  string
	source  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCloudEventsNotifier creates a notifier posting to target. Each send is cut off after timeout.
func NewCloudEventsNotifier(target, source string, timeout time.Duration, logger *slog.Logger) (*CloudEventsNotifier, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	if source == "" {
		source = DefaultSource
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudEventsNotifier{client: c, target: target, source: source, timeout: timeout, logger: logger}, nil
}

func (n *CloudEventsNotifier) DocumentArchived(ctx context.Context, entry *models.ArchiveEntry) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(n.source)
	e.SetType(TypeDocumentArchived)
	e.SetSubject(entry.ObjectID)
	e.SetTime(time.Now())

	data := ArchivedData{
		ArchiveID:    entry.ID,
		Number:       entry.Number,
		DocumentType: entry.DocumentType,
		SubjectName:  entry.Subject.Name,
		ObjectID:     entry.ObjectID,
		ObjectURL:    entry.ObjectURL,
		FileName:     entry.FileName,
		FileSize:     entry.FileSize,
		UnitID:       entry.UnitID,
		RecordedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	result := n.client.Send(cloudevents.ContextWithTarget(sendCtx, n.target), e)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to send %s event: %w", TypeDocumentArchived, result)
	}
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("event %s was not acknowledged: %w", e.ID(), result)
	}
	n.logger.Debug("Archive event sent.", "eventId", e.ID(), "archiveId", entry.ID)
	return nil
}
