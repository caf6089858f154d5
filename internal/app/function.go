// Package app wires configuration into a ready-to-serve document pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lllllllleong/kelurahandocs/internal/api"
	"github.com/Lllllllleong/kelurahandocs/internal/config"
	"github.com/Lllllllleong/kelurahandocs/internal/conversion"
	"github.com/Lllllllleong/kelurahandocs/internal/events"
	"github.com/Lllllllleong/kelurahandocs/internal/gcp"
	"github.com/Lllllllleong/kelurahandocs/internal/publish"
	"github.com/Lllllllleong/kelurahandocs/internal/render"
	"github.com/Lllllllleong/kelurahandocs/internal/repository"
	"github.com/Lllllllleong/kelurahandocs/internal/services"
)

// DocumentFunction holds the clients behind the HTTP entry point.
type DocumentFunction struct {
	pool            *pgxpool.Pool
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	handler         http.Handler
	logger          *slog.Logger
}

// NewDocumentFunction connects every client named by cfg.
func NewDocumentFunction(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DocumentFunction, error) {
	f := &DocumentFunction{logger: logger}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.DatabaseURL,
		MaxConns:         cfg.DBMaxConns,
		DialTimeout:      10 * time.Second,
		StatementTimeout: cfg.DBStatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	f.pool = pool

	storageClient, err := gcp.NewStorageClient(ctx, cfg.CredentialsFile)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.storageClient = storageClient

	var settings conversion.SettingsStore
	switch cfg.SettingsBackend {
	case config.SettingsPostgres:
		settings = repository.NewSettingsRepository(pool)
	case config.SettingsFirestore:
		fc, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.firestoreClient = fc
		settings = gcp.NewFirestoreSettings(fc, cfg.SettingsCollection)
	}

	var source render.Source = render.DirSource{Root: cfg.TemplateDir}
	if cfg.TemplateBucket != "" {
		source = gcp.NewTemplateBucket(storageClient, cfg.TemplateBucket, cfg.TemplatePrefix)
	}

	var notifier events.Notifier = events.Nop{}
	if cfg.EventsSinkURL != "" {
		n, err := events.NewCloudEventsNotifier(cfg.EventsSinkURL, cfg.EventsSource, cfg.EventsTimeout, logger)
		if err != nil {
			f.Close()
			return nil, err
		}
		notifier = n
	}

	converter := conversion.NewClient(cfg.ConversionBaseURL, conversion.NewResolver(settings, cfg.CredentialKey, logger), logger)
	publisher := publish.NewPublisher(storageClient, publish.Config{
		PublicBaseURL: cfg.PublicBaseURL,
		SignedURLTTL:  cfg.SignedURLTTL,
		MaxAttempts:   cfg.UploadAttempts,
	}, logger)

	orch := services.NewOrchestrator(
		services.Config{
			Bucket:            cfg.Bucket,
			StagingDir:        cfg.StagingDir,
			ConversionTimeout: cfg.ConversionTimeout,
		},
		services.Dependencies{
			Renderer:  render.NewRenderer(source),
			Converter: services.NewConverter(converter),
			Publisher: publisher,
			Archive:   repository.NewArchiveRepository(pool, logger),
			Units:     repository.NewUnitRepository(pool, logger),
			Notifier:  notifier,
			Logger:    logger,
		},
	)

	health := func(ctx context.Context) error {
		return repository.HealthCheck(ctx, pool, 2*time.Second, logger)
	}
	f.handler = api.NewHandler(orch, health, logger).Routes()

	logger.Info("Document pipeline initialized.", "bucket", cfg.Bucket, "settingsBackend", cfg.SettingsBackend, "templateBucket", cfg.TemplateBucket)
	return f, nil
}

// ServeHTTP implements http.Handler.
func (f *DocumentFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.handler.ServeHTTP(w, r)
}

// Close releases every client.
func (f *DocumentFunction) Close() {
	if f.firestoreClient != nil {
		if err := f.firestoreClient.Close(); err != nil {
			f.logger.Error("Failed to close Firestore client", "error", err)
		}
	}
	if f.storageClient != nil {
		if err := f.storageClient.Close(); err != nil {
			f.logger.Error("Failed to close storage client", "error", err)
		}
	}
	repository.Close(f.pool, f.logger)
}
