package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository reads deployment settings from app_settings.
type SettingsRepository struct {
	db Querier
}

func NewSettingsRepository(db Querier) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Setting returns the value for key. A missing row reports ok=false without an error.
func (r *SettingsRepository) Setting(ctx context.Context, key string) (string, bool, error) {
	var value *string
	err := r.db.QueryRow(ctx, `SELECT setting_value FROM app_settings WHERE setting_key = $1 LIMIT 1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}
