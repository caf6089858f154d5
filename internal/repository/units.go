package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
)

// ErrUnitNotFound is returned when no organizational unit matches.
var ErrUnitNotFound = errors.New("organizational unit not found")

// UnitRepository resolves the kelurahan a document belongs to.
type UnitRepository interface {
	ByName(ctx context.Context, name string) (*models.OrgUnit, error)
	ForUser(ctx context.Context, userID int64) (*models.OrgUnit, error)
}

type unitRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewUnitRepository(db Querier, logger *slog.Logger) UnitRepository {
	return &unitRepository{db: db, logger: logger}
}

func (r *unitRepository) ByName(ctx context.Context, name string) (*models.OrgUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnitNotFound
	}
	var (
		id      int64
		address *string
	)
	err := r.db.QueryRow(ctx, `SELECT id, alamat FROM kelurahan WHERE LOWER(nama) = LOWER($1) LIMIT 1`, name).
		Scan(&id, &address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up kelurahan %q: %w", name, err)
	}
	unit := &models.OrgUnit{ID: id, Name: name}
	if address != nil {
		unit.Address = *address
	}
	return unit, nil
}

func (r *unitRepository) ForUser(ctx context.Context, userID int64) (*models.OrgUnit, error) {
	var id *int64
	err := r.db.QueryRow(ctx, `SELECT kelurahan_id FROM users WHERE id = $1 LIMIT 1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && id == nil) {
		return nil, fmt.Errorf("%w: user %d", ErrUnitNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up kelurahan for user %d: %w", userID, err)
	}
	return &models.OrgUnit{ID: *id}, nil
}
