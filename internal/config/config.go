// Package config loads the pipeline configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings backends for the conversion credential.
const (
	SettingsPostgres  = "postgres"
	SettingsFirestore = "firestore"
	SettingsNone      = "none"
)

const (
	DefaultBucket            = "pdf_surat"
	DefaultTemplateDir       = "templates"
	DefaultConversionTimeout = 2 * time.Minute
	DefaultCredentialKey     = "CONVERTAPI_SECRET"
	DefaultSettingsTable     = "app_settings"
	DefaultEventsTimeout     = 5 * time.Second
)

// Config holds all configuration for the document pipeline.
type Config struct {
	ProjectID string

	// Storage
	Bucket          string
	PublicBaseURL   string
	SignedURLTTL    time.Duration
	UploadAttempts  int
	CredentialsFile string

	// Templates are read from TemplateBucket when set, else from TemplateDir.
	TemplateBucket string
	TemplatePrefix string
	TemplateDir    string
	StagingDir     string

	// Database
	DatabaseURL        string
	DBMaxConns         int32
	DBStatementTimeout time.Duration

	// Conversion
	ConversionBaseURL  string
	ConversionTimeout  time.Duration
	CredentialKey      string
	SettingsBackend    string
	SettingsCollection string

	// Events
	EventsSinkURL string
	EventsSource  string
	EventsTimeout time.Duration

	LogLevel string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads the configuration through v, which is bound to the environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		ProjectID:          v.GetString("PROJECT_ID"),
		Bucket:             v.GetString("PDF_BUCKET"),
		PublicBaseURL:      v.GetString("PUBLIC_BASE_URL"),
		SignedURLTTL:       v.GetDuration("SIGNED_URL_TTL"),
		UploadAttempts:     v.GetInt("UPLOAD_MAX_ATTEMPTS"),
		CredentialsFile:    v.GetString("STORAGE_CREDENTIALS_FILE"),
		TemplateBucket:     v.GetString("TEMPLATE_BUCKET"),
		TemplatePrefix:     v.GetString("TEMPLATE_PREFIX"),
		TemplateDir:        v.GetString("TEMPLATE_DIR"),
		StagingDir:         v.GetString("STAGING_DIR"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMaxConns:         v.GetInt32("DB_MAX_CONNS"),
		DBStatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		ConversionBaseURL:  v.GetString("CONVERTAPI_BASE_URL"),
		ConversionTimeout:  v.GetDuration("CONVERSION_TIMEOUT"),
		CredentialKey:      v.GetString("CONVERTAPI_SETTING_KEY"),
		SettingsBackend:    strings.ToLower(v.GetString("SETTINGS_BACKEND")),
		SettingsCollection: v.GetString("SETTINGS_COLLECTION"),
		EventsSinkURL:      v.GetString("EVENTS_SINK_URL"),
		EventsSource:       v.GetString("EVENTS_SOURCE"),
		EventsTimeout:      v.GetDuration("EVENTS_TIMEOUT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PDF_BUCKET", DefaultBucket)
	v.SetDefault("TEMPLATE_DIR", DefaultTemplateDir)
	v.SetDefault("UPLOAD_MAX_ATTEMPTS", 4)
	v.SetDefault("SIGNED_URL_TTL", "0s")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")
	v.SetDefault("CONVERSION_TIMEOUT", DefaultConversionTimeout.String())
	v.SetDefault("CONVERTAPI_SETTING_KEY", DefaultCredentialKey)
	v.SetDefault("SETTINGS_BACKEND", SettingsPostgres)
	v.SetDefault("SETTINGS_COLLECTION", DefaultSettingsTable)
	v.SetDefault("EVENTS_TIMEOUT", DefaultEventsTimeout.String())
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.Bucket == "" {
		return errors.New("PDF_BUCKET must be set")
	}
	if c.TemplateBucket == "" && c.TemplateDir == "" {
		return errors.New("TEMPLATE_BUCKET or TEMPLATE_DIR must be set")
	}
	if c.ConversionTimeout <= 0 {
		return errors.New("CONVERSION_TIMEOUT must be positive")
	}
	if c.UploadAttempts < 1 {
		return errors.New("UPLOAD_MAX_ATTEMPTS must be at least 1")
	}
	switch c.SettingsBackend {
	case SettingsPostgres, SettingsNone:
	case SettingsFirestore:
		if c.ProjectID == "" {
			return errors.New("PROJECT_ID must be set when SETTINGS_BACKEND is firestore")
		}
	default:
		return fmt.Errorf("SETTINGS_BACKEND must be one of %s, %s or %s", SettingsPostgres, SettingsFirestore, SettingsNone)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
}
