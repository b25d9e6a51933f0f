package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

const messageColumns = `id, ticket_id, author_id, author_name, is_admin, body, attachments,
               audio_url, reply_to_id, edited_at, created_at`

// TicketMessageRepository manages ticket chat messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	Edit(ctx context.Context, messageID, authorID, body string) (*domain.TicketMessage, error)
	GetByID(ctx context.Context, id string) (*domain.TicketMessage, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	// CountUnread counts messages on the ticket authored by someone other
	// than viewerID and created strictly after the watermark instant.
	CountUnread(ctx context.Context, ticketID, viewerID string, after time.Time) (int, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
	feed stream.Broker
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool, feed stream.Broker) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool, feed: feed}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, author_id, author_name, is_admin, body, attachments, audio_url, reply_to_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorID,
		msg.AuthorName,
		msg.IsAdmin,
		msg.Body,
		msg.Attachments,
		msg.AudioURL,
		msg.ReplyToID,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return err
	}
	publishChange(ctx, r.feed, stream.TableTicketMessages, stream.OpInsert, nil, msg)
	return nil
}

func (r *ticketMessageRepository) Edit(ctx context.Context, messageID, authorID, body string) (*domain.TicketMessage, error) {
	old, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if old.AuthorID != authorID {
		return nil, pgx.ErrNoRows
	}
	const query = `
        UPDATE ticket_messages SET body=$1, edited_at=NOW()
        WHERE id=$2 AND author_id=$3
        RETURNING edited_at`
	updated := *old
	updated.Body = body
	if err := r.pool.QueryRow(ctx, query, body, messageID, authorID).Scan(&updated.EditedAt); err != nil {
		return nil, err
	}
	publishChange(ctx, r.feed, stream.TableTicketMessages, stream.OpUpdate, old, &updated)
	return &updated, nil
}

func (r *ticketMessageRepository) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE id=$1`
	var msg domain.TicketMessage
	if err := scanMessage(r.pool.QueryRow(ctx, query, id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) CountUnread(ctx context.Context, ticketID, viewerID string, after time.Time) (int, error) {
	const query = `
        SELECT COUNT(*) FROM ticket_messages
        WHERE ticket_id=$1 AND author_id <> $2 AND created_at > $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, ticketID, viewerID, after).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row rowScanner, msg *domain.TicketMessage) error {
	return row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.IsAdmin,
		&msg.Body,
		&msg.Attachments,
		&msg.AudioURL,
		&msg.ReplyToID,
		&msg.EditedAt,
		&msg.CreatedAt,
	)
}
