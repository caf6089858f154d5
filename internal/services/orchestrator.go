// Package services runs the document pipeline: render, convert, store, archive.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/kelurahandocs/internal/conversion"
	"github.com/Lllllllleong/kelurahandocs/internal/events"
	"github.com/Lllllllleong/kelurahandocs/internal/models"
	"github.com/Lllllllleong/kelurahandocs/internal/publish"
	"github.com/Lllllllleong/kelurahandocs/internal/render"
	"github.com/Lllllllleong/kelurahandocs/internal/repository"
	"github.com/Lllllllleong/kelurahandocs/internal/staging"
)

// PDFContentType is the content type of every produced document.
const PDFContentType = "application/pdf"

var whitespace = regexp.MustCompile(`\s+`)

// Renderer fills a template.
type Renderer interface {
	Render(ctx context.Context, templateID string, values render.Values) ([]byte, error)
}

// ConversionSession converts one staged file.
type ConversionSession interface {
	ConvertFile(ctx context.Context, src, dst string) (*conversion.Result, error)
}

// Converter opens a conversion session, resolving its credential.
type Converter interface {
	Open(ctx context.Context) (ConversionSession, error)
}

// Publisher stores converted documents.
type Publisher interface {
	Publish(ctx context.Context, data []byte, path, bucket, contentType string) (*publish.StoredObject, error)
}

type conversionClient struct{ c *conversion.Client }

func (a conversionClient) Open(ctx context.Context) (ConversionSession, error) {
	s, err := a.c.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewConverter adapts a conversion.Client.
func NewConverter(c *conversion.Client) Converter { return conversionClient{c: c} }

// Config holds orchestrator settings.
type Config struct {
	Bucket            string
	StagingDir        string
	ConversionTimeout time.Duration
}

// Dependencies are the collaborators of the Orchestrator. Notifier may be nil.
type Dependencies struct {
	Catalog   Catalog
	Renderer  Renderer
	Converter Converter
	Publisher Publisher
	Archive   repository.ArchiveRepository
	Units     repository.UnitRepository
	Notifier  events.Notifier
	Logger    *slog.Logger
}

// Orchestrator drives requests through the document chains of their document type.
type Orchestrator struct {
	config   Config
	deps     Dependencies
	validate *validator.Validate
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.ConversionTimeout <= 0 {
		cfg.ConversionTimeout = 2 * time.Minute
	}
	if deps.Catalog == nil {
		deps.Catalog = DefaultCatalog()
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	return &Orchestrator{
		config:   cfg,
		deps:     deps,
		validate: validate,
		now:      time.Now,
	}
}

// Catalog returns the document types the orchestrator serves.
func (o *Orchestrator) Catalog() Catalog { return o.deps.Catalog }

// Request is one document request.
type Request struct {
	Form             models.FormData
	UserID           *int64
	IncludeSecondary bool
	RequestID        string
}

// Document is one produced output.
type Document struct {
	// Name is the download name used inside a bundle.
	Name        string
	FileName    string
	Data        []byte
	ContentType string
	Object      *publish.StoredObject
	// ArchiveID is zero when a best-effort archive insert failed.
	ArchiveID int64
	Secondary bool
}

// Result is the outcome of a successful request: the primary document, optionally followed by
// the secondary one.
type Result struct {
	Documents []Document
}

// chain carries what the outputs of one request share.
type chain struct {
	dt      *DocumentType
	req     *Request
	session ConversionSession
	unit    unitContext
	subject models.Subject
	signer  models.Signer
	now     time.Time
	logger  *slog.Logger
}

// Run produces the documents for docType. The primary chain runs first and its failure aborts
// the request. A failing secondary chain is logged and left out of the result.
func (o *Orchestrator) Run(ctx context.Context, docType string, req *Request) (*Result, error) {
	dt, ok := o.deps.Catalog.Lookup(docType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	if req == nil {
		req = &Request{}
	}
	if req.Form == nil {
		req.Form = models.FormData{}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logCtx := o.deps.Logger.With("docType", dt.Key, "requestId", req.RequestID)
	logCtx.Info("Starting document request.", "fields", len(req.Form), "includeSecondary", req.IncludeSecondary)
	logCtx.Debug("Form fields received.", "keys", req.Form.Keys())

	if err := o.validateForm(dt, req.Form); err != nil {
		logCtx.Warn("Request rejected.", "error", err)
		return nil, err
	}

	c, err := o.preflight(ctx, dt, req, logCtx)
	if err != nil {
		return nil, err
	}

	primary, err := o.runOutput(ctx, c, &dt.Primary, false)
	if err != nil {
		return nil, err
	}
	result := &Result{Documents: []Document{*primary}}

	if req.IncludeSecondary && dt.Secondary != nil {
		secondary, err := o.runOutput(ctx, c, dt.Secondary, true)
		if err != nil {
			logCtx.Error("Secondary document failed, returning primary only.", "output", dt.Secondary.Tag, "error", err)
		} else {
			result.Documents = append(result.Documents, *secondary)
		}
	}

	logCtx.Info("Document request completed.", "documents", len(result.Documents))
	return result, nil
}

// signerInput is the signing official block of a signed letter.
type signerInput struct {
	Name     string `form:"nama_pejabat" validate:"required"`
	NIP      string `form:"nip_pejabat" validate:"required"`
	Position string `form:"jabatan" validate:"required"`
}

func (o *Orchestrator) validateForm(dt *DocumentType, f models.FormData) error {
	data := make(map[string]any, len(dt.Required))
	rules := make(map[string]any, len(dt.Required))
	for _, key := range dt.Required {
		data[key] = f.String(key)
		rules[key] = "required"
	}
	invalid := o.validate.ValidateMap(data, rules)

	var missing []string
	for _, key := range dt.Required {
		if _, bad := invalid[key]; bad {
			missing = append(missing, key)
		}
	}

	signerIncomplete := false
	if dt.RequiresSigner {
		err := o.validate.Struct(signerInput{
			Name:     f.String("nama_pejabat"),
			NIP:      f.String("nip_pejabat"),
			Position: f.String("jabatan"),
		})
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			signerIncomplete = true
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
		} else if err != nil {
			return fmt.Errorf("failed to validate signer: %w", err)
		}
	}

	if len(missing) == 0 {
		return nil
	}
	msg := "required fields are missing"
	if signerIncomplete {
		msg = "signing official data is incomplete"
	}
	return &ValidationError{Message: msg, Fields: missing}
}

// preflight resolves the conversion credential and the organizational unit concurrently. No
// staging file exists yet, so a failure here leaves nothing behind.
func (o *Orchestrator) preflight(ctx context.Context, dt *DocumentType, req *Request, logCtx *slog.Logger) (*chain, error) {
	c := &chain{
		dt:     dt,
		req:    req,
		now:    o.now(),
		logger: logCtx,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := o.deps.Converter.Open(gctx)
		if err != nil {
			return err
		}
		c.session = s
		return nil
	})
	g.Go(func() error {
		c.unit = o.lookupUnit(gctx, req, logCtx)
		return nil
	})
	if err := g.Wait(); err != nil {
		logCtx.Error("Conversion service unavailable.", "error", err)
		return nil, &StageError{Stage: StageValidating, Output: dt.Primary.Tag, Err: err}
	}

	f := req.Form
	c.subject = dt.subject(f)
	if dt.RequiresSigner {
		c.signer = models.Signer{
			ID:       f.Int64("pejabat_id"),
			Name:     f.String("nama_pejabat"),
			NIP:      f.String("nip_pejabat"),
			Position: f.String("jabatan"),
		}
	}
	return c, nil
}

// lookupUnit never fails the request: letters without a known unit are archived without one.
func (o *Orchestrator) lookupUnit(ctx context.Context, req *Request, logCtx *slog.Logger) unitContext {
	if o.deps.Units == nil {
		return unitContext{}
	}
	if name := req.Form.String("kelurahan"); name != "" {
		unit, err := o.deps.Units.ByName(ctx, name)
		if err == nil {
			id := unit.ID
			return unitContext{ID: &id, Address: unit.Address}
		}
		logCtx.Warn("Failed to find kelurahan by name.", "kelurahan", name, "error", err)
	}
	if req.UserID != nil {
		unit, err := o.deps.Units.ForUser(ctx, *req.UserID)
		if err == nil {
			id := unit.ID
			return unitContext{ID: &id, Address: unit.Address}
		}
		logCtx.Warn("Failed to find kelurahan for user.", "userId", *req.UserID, "error", err)
	}
	return unitContext{}
}

// runOutput runs one chain inside its own staging scope.
func (o *Orchestrator) runOutput(ctx context.Context, c *chain, spec *OutputSpec, secondary bool) (*Document, error) {
	chainID := uuid.NewString()
	logCtx := c.logger.With("output", spec.Tag, "chainId", chainID)

	return staging.WithScope(ctx, o.config.StagingDir, logCtx, func(ctx context.Context, scope *staging.Scope) (*Document, error) {
		fail := func(stage Stage, err error) (*Document, error) {
			logCtx.Error("Document chain failed.", "stage", string(stage), "error", err)
			return nil, &StageError{Stage: stage, Output: spec.Tag, Err: err}
		}

		values := templateValues(c.dt, spec, c.req.Form, c.unit, c.now)
		docx, err := o.deps.Renderer.Render(ctx, spec.Template, values)
		if err != nil {
			return fail(StageRendering, err)
		}
		docxPath, err := scope.WriteFile(spec.Category, ".docx", docx)
		if err != nil {
			return fail(StageRendering, err)
		}
		logCtx.Debug("Template rendered.", "template", spec.Template, "bytes", len(docx))

		convCtx, cancel := context.WithTimeout(ctx, o.config.ConversionTimeout)
		converted, err := c.session.ConvertFile(convCtx, docxPath, scope.Path(spec.Category, ".pdf"))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// The service may still finish; chainId identifies the attempt for reconciliation.
				logCtx.Warn("Conversion timed out.", "timeout", o.config.ConversionTimeout.String())
			}
			return fail(StageConverting, err)
		}
		pdf, err := os.ReadFile(converted.Path)
		if err != nil {
			return fail(StageConverting, fmt.Errorf("failed to read converted file: %w", err))
		}

		objectPath := publish.ObjectPath(spec.Category, c.subject.Name, spec.Tag, o.now())
		obj, err := o.deps.Publisher.Publish(ctx, pdf, objectPath, o.config.Bucket, PDFContentType)
		if err != nil {
			return fail(StagePublishing, err)
		}

		doc := &Document{
			Name:        bundleName(spec.BundlePrefix, c.subject.Name),
			FileName:    path.Base(obj.Path),
			Data:        pdf,
			ContentType: PDFContentType,
			Object:      obj,
			Secondary:   secondary,
		}

		entry := o.archiveEntry(c, spec, obj)
		id, err := o.deps.Archive.Record(ctx, entry)
		if err != nil {
			policy := spec.Policy
			if secondary {
				policy = BestEffortArchive
			}
			if policy == StrictArchive {
				logCtx.Error("Archive record failed, stored object is not archived.", "gcsObject", obj.ID)
				return fail(StageRecording, err)
			}
			logCtx.Warn("Archive record failed, returning document anyway.", "gcsObject", obj.ID, "policy", policy.String(), "error", err)
			return doc, nil
		}
		doc.ArchiveID = id

		if err := o.deps.Notifier.DocumentArchived(ctx, entry); err != nil {
			logCtx.Warn("Failed to send archive notification.", "archiveId", id, "error", err)
		}
		logCtx.Info("Document chain completed.", "stage", string(StageCompleted), "archiveId", id, "gcsObject", obj.ID, "pages", converted.Pages)
		return doc, nil
	})
}

func (o *Orchestrator) archiveEntry(c *chain, spec *OutputSpec, obj *publish.StoredObject) *models.ArchiveEntry {
	f := c.req.Form
	number := f.String("nomor_surat")
	switch {
	case spec.Number != "":
		number = spec.Number
	case c.dt.NumberFromSubject:
		number = c.subject.Name
	}
	if number == "" {
		number = "-"
	}
	number += spec.NumberSuffix

	date := c.now
	if c.dt.LetterDateField != "" {
		if t, ok := ParseDate(f.String(c.dt.LetterDateField)); ok {
			date = t
		}
	}

	subjectMatter := spec.Label
	if spec.SubjectMatter != nil {
		subjectMatter = spec.SubjectMatter(f)
	}

	return &models.ArchiveEntry{
		Number:        number,
		DocumentType:  spec.Label,
		Date:          date,
		SubjectMatter: subjectMatter,
		Subject:       c.subject,
		Detail:        archiveDetail(c.dt, f),
		Signer:        c.signer,
		UnitID:        c.unit.ID,
		CreatedBy:     c.req.UserID,
		ObjectID:      obj.ID,
		ObjectURL:     obj.URL,
		FileName:      obj.Path,
		FileSize:      obj.Size,
		ContentType:   obj.ContentType,
		Status:        models.StatusActive,
	}
}

func bundleName(prefix, subject string) string {
	subject = whitespace.ReplaceAllString(strings.TrimSpace(subject), "_")
	if subject == "" {
		return prefix + ".pdf"
	}
	return prefix + "_" + subject + ".pdf"
}
