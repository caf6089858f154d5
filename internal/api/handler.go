// Package api exposes the document pipeline over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/kelurahandocs/internal/conversion"
	"github.com/Lllllllleong/kelurahandocs/internal/models"
	"github.com/Lllllllleong/kelurahandocs/internal/render"
	"github.com/Lllllllleong/kelurahandocs/internal/services"
)

const maxBodyBytes = 10 << 20

// Pipeline is the document service behind the handler.
type Pipeline interface {
	Run(ctx context.Context, docType string, req *services.Request) (*services.Result, error)
	Catalog() services.Catalog
}

// Handler serves the document endpoints.
type Handler struct {
	pipeline Pipeline
	logger   *slog.Logger
	health   func(ctx context.Context) error
}

// NewHandler creates a Handler. health may be nil.
func NewHandler(p Pipeline, health func(ctx context.Context) error, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipeline: p, logger: logger, health: health}
}

// Routes returns the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Get("/document-types", h.handleDocumentTypes)
	r.Post("/documents/{docType}", h.handleGenerate)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("Request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"requestId", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(start).String(),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDocumentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Catalog().Infos())
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")
	logCtx := h.logger.With("docType", docType, "requestId", middleware.GetReqID(r.Context()))

	var body models.GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		logCtx.Warn("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Bad Request: could not parse JSON", Details: err.Error()})
		return
	}

	res, err := h.pipeline.Run(r.Context(), docType, &services.Request{
		Form:             body.FormData,
		UserID:           body.UserID,
		IncludeSecondary: body.WantsSecondary(),
		RequestID:        middleware.GetReqID(r.Context()),
	})
	if err != nil {
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logCtx.Error("Document request failed", "error", err)
		}
		writeJSON(w, status, resp)
		return
	}

	if len(res.Documents) == 1 {
		writeDocument(w, res.Documents[0])
		return
	}
	bundle := models.BundleResponse{Success: true, Documents: make([]models.BundleDocument, 0, len(res.Documents))}
	for _, d := range res.Documents {
		bundle.Documents = append(bundle.Documents, models.BundleDocument{
			Name: d.Name,
			Data: base64.StdEncoding.EncodeToString(d.Data),
			Type: d.ContentType,
		})
	}
	writeJSON(w, http.StatusOK, bundle)
}

// errorResponse maps pipeline errors to a status and a body without internal detail beyond the
// error text, which never carries credentials.
func errorResponse(err error) (int, models.ErrorResponse) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, models.ErrorResponse{Error: ve.Message, Details: strings.Join(ve.Fields, ", ")}
	case errors.Is(err, services.ErrUnknownDocumentType):
		return http.StatusNotFound, models.ErrorResponse{Error: "unknown document type", Details: err.Error()}
	case errors.Is(err, conversion.ErrNotConfigured):
		return http.StatusInternalServerError, models.ErrorResponse{Error: "conversion service is not configured, contact the administrator"}
	case errors.Is(err, render.ErrTemplateNotFound), errors.Is(err, render.ErrInvalidTemplate):
		return http.StatusInternalServerError, models.ErrorResponse{Error: "document template unavailable", Details: err.Error()}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Error: "failed to process document", Details: err.Error()}
	}
}

func writeDocument(w http.ResponseWriter, d services.Document) {
	name := d.FileName
	if name == "" {
		name = d.Name
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	if d.Object != nil && d.Object.URL != "" {
		w.Header().Set("X-Document-URL", d.Object.URL)
	}
	if d.ArchiveID != 0 {
		w.Header().Set("X-Archive-ID", strconv.FormatInt(d.ArchiveID, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.Data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
