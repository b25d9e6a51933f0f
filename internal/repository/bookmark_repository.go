package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// BookmarkRepository stores per-admin ticket bookmarks.
type BookmarkRepository interface {
	// Toggle flips the bookmark and reports the new state.
	Toggle(ctx context.Context, adminID, ticketID string) (bool, error)
	ListByAdmin(ctx context.Context, adminID string) ([]domain.TicketBookmark, error)
}

type bookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository builds repository.
func NewBookmarkRepository(pool *pgxpool.Pool) BookmarkRepository {
	return &bookmarkRepository{pool: pool}
}

func (r *bookmarkRepository) Toggle(ctx context.Context, adminID, ticketID string) (bool, error) {
	const remove = `DELETE FROM ticket_bookmarks WHERE admin_id=$1 AND ticket_id=$2`
	cmd, err := r.pool.Exec(ctx, remove, adminID, ticketID)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return false, nil
	}
	const insert = `
        INSERT INTO ticket_bookmarks (admin_id, ticket_id)
        VALUES ($1,$2)
        ON CONFLICT (admin_id, ticket_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, adminID, ticketID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *bookmarkRepository) ListByAdmin(ctx context.Context, adminID string) ([]domain.TicketBookmark, error) {
	const query = `
        SELECT admin_id, ticket_id, created_at
        FROM ticket_bookmarks WHERE admin_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketBookmark
	for rows.Next() {
		var bookmark domain.TicketBookmark
		if err := rows.Scan(&bookmark.AdminID, &bookmark.TicketID, &bookmark.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, bookmark)
	}
	return result, rows.Err()
}
