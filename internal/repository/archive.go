package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
)

// ErrRecord wraps every failed archive insert.
var ErrRecord = errors.New("archive record failed")

const insertArchive = `
INSERT INTO document_archives (
	nomor_surat, jenis_dokumen, tanggal_surat, perihal,
	nik_subjek, nama_subjek, alamat_subjek, data_detail,
	pejabat_id, nama_pejabat, nip_pejabat, jabatan_pejabat,
	google_drive_id, google_drive_url, file_name, file_size, mime_type,
	kelurahan_id, created_by, status
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8,
	$9, $10, $11, $12,
	$13, $14, $15, $16, $17,
	$18, $19, $20
) RETURNING id`

// ArchiveRepository appends archive entries. Entries are never updated.
type ArchiveRepository interface {
	Record(ctx context.Context, entry *models.ArchiveEntry) (int64, error)
}

type archiveRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewArchiveRepository(db Querier, logger *slog.Logger) ArchiveRepository {
	return &archiveRepository{db: db, logger: logger}
}

// Record inserts one row and returns its id.
func (r *archiveRepository) Record(ctx context.Context, e *models.ArchiveEntry) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("%w: nil entry", ErrRecord)
	}
	detail, err := e.DetailJSON()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode data_detail: %w", ErrRecord, err)
	}
	status := e.Status
	if status == "" {
		status = models.StatusActive
	}
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}

	var id int64
	err = r.db.QueryRow(ctx, insertArchive,
		e.Number, e.DocumentType, date, nullable(e.SubjectMatter),
		nullable(e.Subject.NIK), e.Subject.Name, nullable(e.Subject.Address), detail,
		e.Signer.ID, nullable(e.Signer.Name), nullable(e.Signer.NIP), nullable(e.Signer.Position),
		e.ObjectID, e.ObjectURL, e.FileName, e.FileSize, e.ContentType,
		e.UnitID, e.CreatedBy, status,
	).Scan(&id)
	if err != nil {
		r.logger.Error("failed to insert archive entry", "nomorSurat", e.Number, "jenisDokumen", e.DocumentType, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrRecord, err)
	}

	e.ID = id
	r.logger.Info("archive entry recorded", "id", id, "nomorSurat", e.Number, "jenisDokumen", e.DocumentType)
	return id, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
