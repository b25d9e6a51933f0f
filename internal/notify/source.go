package notify

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// RepositoryTicketSource adapts the ticket repository to the tracking rule.
type RepositoryTicketSource struct {
	Tickets repository.TicketRepository
}

// ListTracked returns the identity's entitled ticket set.
func (s RepositoryTicketSource) ListTracked(ctx context.Context, id Identity) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{Limit: 500}
	if id.Admin {
		adminID := id.ID
		filter.OpenOrAssignedTo = &adminID
	} else {
		userID := id.ID
		filter.UserID = &userID
	}
	return s.Tickets.ListWithFilter(ctx, filter)
}
