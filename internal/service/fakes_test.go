package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// In-memory repository fakes. They return pgx.ErrNoRows on misses so the
// services exercise the same error mapping paths as the real store.

type memTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = "t" + strconv.Itoa(r.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *memTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.Number == number {
			copied := ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		if filter.AssigneeID != nil &&
			(ticket.AssignedAdminID == nil || *ticket.AssignedAdminID != *filter.AssigneeID) {
			continue
		}
		if filter.OpenOrAssignedTo != nil {
			assigned := ticket.AssignedAdminID != nil && *ticket.AssignedAdminID == *filter.OpenOrAssignedTo
			if ticket.Status != domain.TicketStatusOpen && !assigned {
				continue
			}
		}
		out = append(out, ticket)
	}
	return out, nil
}

func (r *memTicketRepo) CloseAgedResolved(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []domain.Ticket
	for id, ticket := range r.tickets {
		if ticket.Status != domain.TicketStatusResolved {
			continue
		}
		if ticket.AdminResolvedAt == nil || ticket.AdminResolvedAt.After(cutoff) {
			continue
		}
		ticket.Status = domain.TicketStatusClosed
		ticket.UpdatedAt = time.Now()
		r.tickets[id] = ticket
		closed = append(closed, ticket)
	}
	return closed, nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	seq  int
	msgs map[string]domain.TicketMessage
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{msgs: make(map[string]domain.TicketMessage)}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = "m" + strconv.Itoa(r.seq)
	msg.CreatedAt = time.Now()
	r.msgs[msg.ID] = *msg
	return nil
}

func (r *memMessageRepo) Edit(_ context.Context, messageID, authorID, body string) (*domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[messageID]
	if !ok || msg.AuthorID != authorID {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	msg.Body = body
	msg.EditedAt = &now
	r.msgs[messageID] = msg
	copied := msg
	return &copied, nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id string) (*domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := msg
	return &copied, nil
}

func (r *memMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketMessage
	for _, msg := range r.msgs {
		if msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *memMessageRepo) CountUnread(_ context.Context, ticketID, viewerID string, after time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.msgs {
		if msg.TicketID == ticketID && msg.AuthorID != viewerID && msg.CreatedAt.After(after) {
			count++
		}
	}
	return count, nil
}

type memAdminRepo struct {
	mu     sync.Mutex
	admins map[string]domain.Admin
}

func newMemAdminRepo(admins ...domain.Admin) *memAdminRepo {
	repo := &memAdminRepo{admins: make(map[string]domain.Admin)}
	for _, admin := range admins {
		repo.admins[admin.ID] = admin
	}
	return repo
}

func (r *memAdminRepo) Create(_ context.Context, admin *domain.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[admin.ID] = *admin
	return nil
}

func (r *memAdminRepo) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	admin, ok := r.admins[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := admin
	return &copied, nil
}

func (r *memAdminRepo) GetByEmail(_ context.Context, email string) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, admin := range r.admins {
		if admin.Email == email {
			copied := admin
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAdminRepo) ListActive(_ context.Context) ([]domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Admin
	for _, admin := range r.admins {
		if admin.Active {
			out = append(out, admin)
		}
	}
	return out, nil
}

type memReferralRepo struct {
	mu   sync.Mutex
	seq  int
	refs map[string]domain.TicketReferral
}

func newMemReferralRepo() *memReferralRepo {
	return &memReferralRepo{refs: make(map[string]domain.TicketReferral)}
}

func (r *memReferralRepo) Create(_ context.Context, referral *domain.TicketReferral) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	referral.ID = "r" + strconv.Itoa(r.seq)
	referral.CreatedAt = time.Now()
	r.refs[referral.ID] = *referral
	return nil
}

func (r *memReferralRepo) GetByID(_ context.Context, id string) (*domain.TicketReferral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ref
	return &copied, nil
}

func (r *memReferralRepo) Resolve(_ context.Context, id string, status domain.ReferralStatus) (*domain.TicketReferral, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return nil, false, pgx.ErrNoRows
	}
	if ref.Status != domain.ReferralStatusPending {
		copied := ref
		return &copied, false, nil
	}
	now := time.Now()
	ref.Status = status
	ref.RespondedAt = &now
	r.refs[id] = ref
	copied := ref
	return &copied, true, nil
}

func (r *memReferralRepo) ListPendingForAdmin(_ context.Context, adminID string) ([]domain.TicketReferral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketReferral
	for _, ref := range r.refs {
		if ref.ReferredAdmin == adminID && ref.Status == domain.ReferralStatusPending {
			out = append(out, ref)
		}
	}
	return out, nil
}

type memBookmarkRepo struct {
	mu    sync.Mutex
	marks map[string]domain.TicketBookmark
}

func newMemBookmarkRepo() *memBookmarkRepo {
	return &memBookmarkRepo{marks: make(map[string]domain.TicketBookmark)}
}

func (r *memBookmarkRepo) Toggle(_ context.Context, adminID, ticketID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := adminID + "|" + ticketID
	if _, ok := r.marks[key]; ok {
		delete(r.marks, key)
		return false, nil
	}
	r.marks[key] = domain.TicketBookmark{AdminID: adminID, TicketID: ticketID, CreatedAt: time.Now()}
	return true, nil
}

func (r *memBookmarkRepo) ListByAdmin(_ context.Context, adminID string) ([]domain.TicketBookmark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketBookmark
	for _, mark := range r.marks {
		if mark.AdminID == adminID {
			out = append(out, mark)
		}
	}
	return out, nil
}
