package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

const ticketColumns = `id, number, user_id, department_code, assigned_admin_id, assigned_admin_name,
               title, description, status, priority, attachments, resolution_notes, reopen_count,
               escalated_at, created_at, updated_at, resolved_at, admin_resolved_at, user_closed_at`

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID     *string
	AssigneeID *string
	// OpenOrAssignedTo selects the admin tracking set: tickets that are up
	// for grabs (Open) plus tickets assigned to the given admin.
	OpenOrAssignedTo *string
	Statuses         []domain.TicketStatus
	Priorities       []domain.TicketPriority
	SearchTerm       *string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	Limit            int
	Offset           int
}

// TicketRepository encapsulates ticket persistence. Writes publish change
// events on the feed after they commit.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// CloseAgedResolved transitions Resolved tickets whose admin resolution
	// timestamp is older than the cutoff to Closed, returning the affected
	// rows. The predicate self-excludes already-closed tickets, so repeat
	// invocations are idempotent.
	CloseAgedResolved(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
	feed stream.Broker
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool, feed stream.Broker) TicketRepository {
	return &ticketRepository{pool: pool, feed: feed}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, user_id, department_code, title, description, status, priority, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.UserID,
		ticket.DepartmentCode,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Attachments,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}
	publishChange(ctx, r.feed, stream.TableTickets, stream.OpInsert, nil, ticket)
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	old, err := r.GetByID(ctx, ticket.ID)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET assigned_admin_id=$1, assigned_admin_name=$2, status=$3, priority=$4,
            resolution_notes=$5, reopen_count=$6, escalated_at=$7, resolved_at=$8,
            admin_resolved_at=$9, user_closed_at=$10, updated_at=NOW()
        WHERE id=$11
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.AssignedAdminID,
		ticket.AssignedAdminName,
		ticket.Status,
		ticket.Priority,
		ticket.ResolutionNotes,
		ticket.ReopenCount,
		ticket.EscalatedAt,
		ticket.ResolvedAt,
		ticket.AdminResolvedAt,
		ticket.UserClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt); err != nil {
		return err
	}
	publishChange(ctx, r.feed, stream.TableTickets, stream.OpUpdate, old, ticket)
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_admin_id=$%d", len(args)))
	}
	if filter.OpenOrAssignedTo != nil {
		args = append(args, *filter.OpenOrAssignedTo)
		clauses = append(clauses, fmt.Sprintf("(status='OPEN' OR assigned_admin_id=$%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CloseAgedResolved(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE tickets SET status='CLOSED', updated_at=NOW()
        WHERE status='RESOLVED' AND admin_resolved_at IS NOT NULL AND admin_resolved_at <= $1
        RETURNING %s`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	closed, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	for i := range closed {
		old := closed[i]
		old.Status = domain.TicketStatusResolved
		publishChange(ctx, r.feed, stream.TableTickets, stream.OpUpdate, &old, &closed[i])
	}
	return closed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.UserID,
		&ticket.DepartmentCode,
		&ticket.AssignedAdminID,
		&ticket.AssignedAdminName,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Attachments,
		&ticket.ResolutionNotes,
		&ticket.ReopenCount,
		&ticket.EscalatedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.AdminResolvedAt,
		&ticket.UserClosedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
