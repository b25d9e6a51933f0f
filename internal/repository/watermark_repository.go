package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// WatermarkRepository persists per-(user, ticket) viewed watermarks.
type WatermarkRepository interface {
	// Get returns nil without error when no watermark row exists yet;
	// callers treat a missing watermark as "everything is unseen".
	Get(ctx context.Context, userID, ticketID string) (*domain.NotificationWatermark, error)
	// Touch upserts the row keyed by (user_id, ticket_id), setting both
	// viewed columns to the given instant. One viewed action clears message
	// and status notifications together. Concurrent touches from multiple
	// tabs converge: GREATEST keeps the columns advance-only.
	Touch(ctx context.Context, userID, ticketID string, at time.Time) (*domain.NotificationWatermark, error)
}

type watermarkRepository struct {
	pool *pgxpool.Pool
}

// NewWatermarkRepository builds repository.
func NewWatermarkRepository(pool *pgxpool.Pool) WatermarkRepository {
	return &watermarkRepository{pool: pool}
}

func (r *watermarkRepository) Get(ctx context.Context, userID, ticketID string) (*domain.NotificationWatermark, error) {
	const query = `
        SELECT user_id, ticket_id, last_message_viewed_at, last_status_viewed_at
        FROM notification_watermarks WHERE user_id=$1 AND ticket_id=$2`
	var wm domain.NotificationWatermark
	err := r.pool.QueryRow(ctx, query, userID, ticketID).Scan(
		&wm.UserID,
		&wm.TicketID,
		&wm.LastMessageViewedAt,
		&wm.LastStatusViewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &wm, nil
}

func (r *watermarkRepository) Touch(ctx context.Context, userID, ticketID string, at time.Time) (*domain.NotificationWatermark, error) {
	const query = `
        INSERT INTO notification_watermarks (user_id, ticket_id, last_message_viewed_at, last_status_viewed_at)
        VALUES ($1,$2,$3,$3)
        ON CONFLICT (user_id, ticket_id) DO UPDATE SET
            last_message_viewed_at = GREATEST(notification_watermarks.last_message_viewed_at, EXCLUDED.last_message_viewed_at),
            last_status_viewed_at  = GREATEST(notification_watermarks.last_status_viewed_at, EXCLUDED.last_status_viewed_at)
        RETURNING user_id, ticket_id, last_message_viewed_at, last_status_viewed_at`
	var wm domain.NotificationWatermark
	if err := r.pool.QueryRow(ctx, query, userID, ticketID, at).Scan(
		&wm.UserID,
		&wm.TicketID,
		&wm.LastMessageViewedAt,
		&wm.LastStatusViewedAt,
	); err != nil {
		return nil, err
	}
	return &wm, nil
}
