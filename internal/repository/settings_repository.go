package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

const settingsColumns = `id, auto_close_threshold_hours, maintenance_mode, maintenance_message, updated_at`

// SettingsRepository stores the single central settings row. Updates are
// published on the change stream so workers and gates hot-reload them.
type SettingsRepository interface {
	Get(ctx context.Context) (*domain.AppSettings, error)
	Update(ctx context.Context, settings *domain.AppSettings) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
	feed stream.Broker
}

// NewSettingsRepository builds repository.
func NewSettingsRepository(pool *pgxpool.Pool, feed stream.Broker) SettingsRepository {
	return &settingsRepository{pool: pool, feed: feed}
}

func (r *settingsRepository) Get(ctx context.Context) (*domain.AppSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM app_settings WHERE id='default'`
	var settings domain.AppSettings
	if err := r.pool.QueryRow(ctx, query).Scan(
		&settings.ID,
		&settings.AutoCloseThresholdHours,
		&settings.MaintenanceMode,
		&settings.MaintenanceMessage,
		&settings.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Update(ctx context.Context, settings *domain.AppSettings) error {
	old, err := r.Get(ctx)
	if err != nil {
		return err
	}
	query := `
        UPDATE app_settings SET auto_close_threshold_hours=$1, maintenance_mode=$2,
            maintenance_message=$3, updated_at=NOW()
        WHERE id='default'
        RETURNING ` + settingsColumns
	if err := r.pool.QueryRow(ctx, query,
		settings.AutoCloseThresholdHours,
		settings.MaintenanceMode,
		settings.MaintenanceMessage,
	).Scan(
		&settings.ID,
		&settings.AutoCloseThresholdHours,
		&settings.MaintenanceMode,
		&settings.MaintenanceMessage,
		&settings.UpdatedAt,
	); err != nil {
		return err
	}
	publishChange(ctx, r.feed, stream.TableAppSettings, stream.OpUpdate, old, settings)
	return nil
}
