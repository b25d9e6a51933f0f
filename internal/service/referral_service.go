package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// ReferralService governs ticket hand-off between admins. A referral may
// only be initiated inside a short-lived capability window granted when
// the assigned admin opens the ticket; the window expires on its own and
// a re-grant restarts it, latest grant wins.
type ReferralService struct {
	referrals repository.ReferralRepository
	tickets   repository.TicketRepository
	admins    repository.AdminRepository
	logger    *zap.Logger
	window    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	grants map[string]time.Time
}

// ReferralDependencies bundles collaborators for the referral service.
type ReferralDependencies struct {
	ReferralRepo repository.ReferralRepository
	TicketRepo   repository.TicketRepository
	AdminRepo    repository.AdminRepository
	Logger       *zap.Logger
	Window       time.Duration
	Now          func() time.Time
}

// NewReferralService constructs the service.
func NewReferralService(deps ReferralDependencies) *ReferralService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	window := deps.Window
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ReferralService{
		referrals: deps.ReferralRepo,
		tickets:   deps.TicketRepo,
		admins:    deps.AdminRepo,
		logger:    deps.Logger,
		window:    window,
		now:       now,
		grants:    make(map[string]time.Time),
	}
}

// GrantReferralPermission opens the referral window for an admin on a
// ticket. Only the assigned admin of an In Progress ticket qualifies.
func (s *ReferralService) GrantReferralPermission(ctx context.Context, admin *domain.Admin, ticketID string) error {
	if admin == nil {
		s.logger.Warn("referral grant without admin identity", zap.String("ticket_id", ticketID))
		return nil
	}
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != domain.TicketStatusInProgress ||
		ticket.AssignedAdminID == nil || *ticket.AssignedAdminID != admin.ID {
		return nil
	}
	s.mu.Lock()
	s.grants[grantKey(admin.ID, ticketID)] = s.now().Add(s.window)
	s.mu.Unlock()
	return nil
}

// CanRefer reports whether the admin holds a live referral capability for
// the ticket. Expired grants are pruned on read.
func (s *ReferralService) CanRefer(adminID, ticketID string) bool {
	key := grantKey(adminID, ticketID)
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.grants[key]
	if !ok {
		return false
	}
	if s.now().After(deadline) {
		delete(s.grants, key)
		return false
	}
	return true
}

// RevokeReferralPermission drops an admin's capability for a ticket, used
// when the ticket resolves underneath an open window.
func (s *ReferralService) RevokeReferralPermission(adminID, ticketID string) {
	s.mu.Lock()
	delete(s.grants, grantKey(adminID, ticketID))
	s.mu.Unlock()
}

// CreateReferral proposes a hand-off to another admin. The capability is
// re-validated against live ticket state; the ticket may have resolved
// between grant and submission.
func (s *ReferralService) CreateReferral(ctx context.Context, from *domain.Admin, ticketID, toAdminID, message string) (*domain.TicketReferral, error) {
	if from == nil {
		s.logger.Warn("referral create without admin identity", zap.String("ticket_id", ticketID))
		return nil, nil
	}
	if toAdminID == from.ID {
		return nil, apperrors.NewValidationError("cannot refer a ticket to yourself", nil)
	}
	if !s.CanRefer(from.ID, ticketID) {
		return nil, apperrors.NewPreconditionFailed("referral window is not open",
			map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsTerminal() {
		s.RevokeReferralPermission(from.ID, ticketID)
		return nil, apperrors.NewPreconditionFailed("ticket is no longer active",
			map[string]any{"status": ticket.Status})
	}
	target, err := s.admins.GetByID(ctx, toAdminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("referral target admin not found",
				zap.String("ticket_id", ticketID), zap.String("admin_id", toAdminID))
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	if !target.Active {
		return nil, apperrors.NewValidationError("target admin is inactive", nil)
	}
	ref := &domain.TicketReferral{
		TicketID:       ticketID,
		ReferringAdmin: from.ID,
		ReferredAdmin:  target.ID,
		Status:         domain.ReferralStatusPending,
		Message:        strings.TrimSpace(message),
	}
	if err := s.referrals.Create(ctx, ref); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ref, nil
}

// ResolveReferral accepts or declines a pending referral. Accepted hands
// the ticket to the referred admin; declined returns it to the referring
// admin with a re-fetched name so the attribution is current. Resolved
// referrals are immutable; a second resolve is rejected without touching
// the ticket.
func (s *ReferralService) ResolveReferral(ctx context.Context, actor *domain.Admin, referralID string, accepted bool) (*domain.TicketReferral, error) {
	if actor == nil {
		s.logger.Warn("referral resolve without admin identity", zap.String("referral_id", referralID))
		return nil, nil
	}
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("referral", map[string]any{"referral_id": referralID})
		}
		return nil, apperrors.MapError(err)
	}
	if ref.ReferredAdmin != actor.ID {
		return nil, apperrors.NewForbidden("referral is not addressed to you")
	}

	decision := domain.ReferralStatusDeclined
	nextOwnerID := ref.ReferringAdmin
	if accepted {
		decision = domain.ReferralStatusAccepted
		nextOwnerID = ref.ReferredAdmin
	}
	resolved, ok, err := s.referrals.Resolve(ctx, referralID, decision)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewPreconditionFailed("referral already resolved",
			map[string]any{"referral_id": referralID})
	}

	owner, err := s.admins.GetByID(ctx, nextOwnerID)
	if err != nil {
		s.logger.Warn("referral resolved but next owner unresolvable",
			zap.String("referral_id", referralID),
			zap.String("admin_id", nextOwnerID),
			zap.Error(err))
		return resolved, nil
	}
	ticket, err := s.fetchTicket(ctx, ref.TicketID)
	if err != nil {
		s.logger.Warn("referral resolved but ticket unresolvable",
			zap.String("referral_id", referralID),
			zap.String("ticket_id", ref.TicketID),
			zap.Error(err))
		return resolved, nil
	}
	if ticket.IsTerminal() {
		return resolved, nil
	}
	name := owner.Name
	ticket.AssignedAdminID = &owner.ID
	ticket.AssignedAdminName = &name
	ticket.ResolutionNotes = append(ticket.ResolutionNotes, domain.ResolutionNote{
		Note:      referralActivityNote(decision, owner.Name, owner.DepartmentCode),
		AdminID:   actor.ID,
		AdminName: actor.Name,
		CreatedAt: s.now(),
	})
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return resolved, nil
}

// ListPendingForAdmin returns the referrals awaiting the admin's decision.
func (s *ReferralService) ListPendingForAdmin(ctx context.Context, adminID string) ([]domain.TicketReferral, error) {
	refs, err := s.referrals.ListPendingForAdmin(ctx, adminID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return refs, nil
}

func (s *ReferralService) fetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func referralActivityNote(decision domain.ReferralStatus, ownerName, ownerDept string) string {
	if decision == domain.ReferralStatusAccepted {
		return "referral accepted, ticket handed to " + ownerName + " (" + ownerDept + ")"
	}
	return "referral declined, ticket returned to " + ownerName + " (" + ownerDept + ")"
}

func grantKey(adminID, ticketID string) string {
	return adminID + "|" + ticketID
}
