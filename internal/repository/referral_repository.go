package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

const referralColumns = `id, ticket_id, referring_admin_id, referred_admin_id, status, message, created_at, responded_at`

// ReferralRepository stores admin-to-admin hand-off proposals.
type ReferralRepository interface {
	Create(ctx context.Context, referral *domain.TicketReferral) error
	GetByID(ctx context.Context, id string) (*domain.TicketReferral, error)
	// Resolve moves a pending referral to a terminal status. It returns
	// false when the row was not pending anymore, leaving it untouched.
	Resolve(ctx context.Context, id string, status domain.ReferralStatus) (*domain.TicketReferral, bool, error)
	ListPendingForAdmin(ctx context.Context, adminID string) ([]domain.TicketReferral, error)
}

type referralRepository struct {
	pool *pgxpool.Pool
	feed stream.Broker
}

// NewReferralRepository builds repository.
func NewReferralRepository(pool *pgxpool.Pool, feed stream.Broker) ReferralRepository {
	return &referralRepository{pool: pool, feed: feed}
}

func (r *referralRepository) Create(ctx context.Context, referral *domain.TicketReferral) error {
	const query = `
        INSERT INTO ticket_referrals (ticket_id, referring_admin_id, referred_admin_id, status, message)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query,
		referral.TicketID,
		referral.ReferringAdmin,
		referral.ReferredAdmin,
		referral.Status,
		referral.Message,
	).Scan(&referral.ID, &referral.CreatedAt); err != nil {
		return err
	}
	publishChange(ctx, r.feed, stream.TableReferrals, stream.OpInsert, nil, referral)
	return nil
}

func (r *referralRepository) GetByID(ctx context.Context, id string) (*domain.TicketReferral, error) {
	query := `SELECT ` + referralColumns + ` FROM ticket_referrals WHERE id=$1`
	var referral domain.TicketReferral
	if err := scanReferral(r.pool.QueryRow(ctx, query, id), &referral); err != nil {
		return nil, err
	}
	return &referral, nil
}

func (r *referralRepository) Resolve(ctx context.Context, id string, status domain.ReferralStatus) (*domain.TicketReferral, bool, error) {
	old, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if old.Terminal() {
		return old, false, nil
	}
	// The WHERE status guard closes the race between the read above and a
	// concurrent resolution of the same referral.
	query := `
        UPDATE ticket_referrals SET status=$1, responded_at=NOW()
        WHERE id=$2 AND status='PENDING'
        RETURNING ` + referralColumns
	var updated domain.TicketReferral
	if err := scanReferral(r.pool.QueryRow(ctx, query, status, id), &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race: the row left PENDING between read and update.
			return old, false, nil
		}
		return nil, false, err
	}
	publishChange(ctx, r.feed, stream.TableReferrals, stream.OpUpdate, old, &updated)
	return &updated, true, nil
}

func (r *referralRepository) ListPendingForAdmin(ctx context.Context, adminID string) ([]domain.TicketReferral, error) {
	query := `SELECT ` + referralColumns + `
        FROM ticket_referrals WHERE referred_admin_id=$1 AND status='PENDING'
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketReferral
	for rows.Next() {
		var referral domain.TicketReferral
		if err := scanReferral(rows, &referral); err != nil {
			return nil, err
		}
		result = append(result, referral)
	}
	return result, rows.Err()
}

func scanReferral(row rowScanner, referral *domain.TicketReferral) error {
	return row.Scan(
		&referral.ID,
		&referral.TicketID,
		&referral.ReferringAdmin,
		&referral.ReferredAdmin,
		&referral.Status,
		&referral.Message,
		&referral.CreatedAt,
		&referral.RespondedAt,
	)
}
