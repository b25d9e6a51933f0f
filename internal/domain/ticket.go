package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for support requests. JSON tags double as the
// column names carried on change-stream rows.
type Ticket struct {
	ID                string             `json:"id"`
	Number            string             `json:"number"`
	UserID            string             `json:"user_id"`
	DepartmentCode    string             `json:"department_code"`
	AssignedAdminID   *string            `json:"assigned_admin_id"`
	AssignedAdminName *string            `json:"assigned_admin_name"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Status            TicketStatus       `json:"status"`
	Priority          TicketPriority     `json:"priority"`
	Attachments       AttachmentList     `json:"attachments"`
	ResolutionNotes   ResolutionNoteList `json:"resolution_notes"`
	ReopenCount       int                `json:"reopen_count"`
	EscalatedAt       *time.Time         `json:"escalated_at"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	ResolvedAt        *time.Time         `json:"resolved_at"`
	AdminResolvedAt   *time.Time         `json:"admin_resolved_at"`
	UserClosedAt      *time.Time         `json:"user_closed_at"`
}

// IsTerminal reports whether the ticket has reached a resting state.
// Terminal tickets cannot be referred; they can still be reopened.
func (t *Ticket) IsTerminal() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// Assigned reports whether an admin currently owns the ticket.
func (t *Ticket) Assigned() bool {
	return t.AssignedAdminID != nil && *t.AssignedAdminID != ""
}

// allowedTransitions is the happy path Open → In Progress → Resolved →
// Closed plus the one explicit cycle: reopening Resolved/Closed tickets.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusResolved},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusOpen, TicketStatusInProgress},
	TicketStatusClosed:     {TicketStatusOpen, TicketStatusInProgress},
}

// ValidTransition reports whether current → next is permitted.
func ValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsReopen reports whether current → next re-enters the active cycle.
func IsReopen(current, next TicketStatus) bool {
	if current != TicketStatusResolved && current != TicketStatusClosed {
		return false
	}
	return next == TicketStatusOpen || next == TicketStatusInProgress
}
