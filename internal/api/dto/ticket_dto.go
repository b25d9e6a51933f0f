package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	DepartmentCode string                `json:"department_code"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	Attachments    domain.AttachmentList `json:"attachments"`
}

// MessageRequest payload for posting a chat message.
type MessageRequest struct {
	Body        string                `json:"body"`
	Attachments domain.AttachmentList `json:"attachments"`
	AudioURL    *string               `json:"audio_url"`
	ReplyToID   *string               `json:"reply_to_id"`
}

// EditMessageRequest payload.
type EditMessageRequest struct {
	Body string `json:"body"`
}

// ResolveRequest payload.
type ResolveRequest struct {
	Note string `json:"note"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                string                    `json:"id"`
	Number            string                    `json:"number"`
	DepartmentCode    string                    `json:"department_code"`
	Title             string                    `json:"title"`
	Status            domain.TicketStatus       `json:"status"`
	Priority          domain.TicketPriority     `json:"priority"`
	AssignedAdminName *string                   `json:"assigned_admin_name"`
	ReopenCount       int                       `json:"reopen_count"`
	EscalatedAt       *time.Time                `json:"escalated_at"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
	ResolutionNotes   domain.ResolutionNoteList `json:"resolution_notes,omitempty"`
}

// MessageResponse response.
type MessageResponse struct {
	ID          string                `json:"id"`
	TicketID    string                `json:"ticket_id"`
	AuthorID    string                `json:"author_id"`
	AuthorName  string                `json:"author_name"`
	IsAdmin     bool                  `json:"is_admin"`
	Body        string                `json:"body"`
	Attachments domain.AttachmentList `json:"attachments"`
	AudioURL    *string               `json:"audio_url"`
	ReplyToID   *string               `json:"reply_to_id"`
	EditedAt    *time.Time            `json:"edited_at"`
	CreatedAt   time.Time             `json:"created_at"`
}

// FromTicket maps a domain ticket to its summary form.
func FromTicket(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:                t.ID,
		Number:            t.Number,
		DepartmentCode:    t.DepartmentCode,
		Title:             t.Title,
		Status:            t.Status,
		Priority:          t.Priority,
		AssignedAdminName: t.AssignedAdminName,
		ReopenCount:       t.ReopenCount,
		EscalatedAt:       t.EscalatedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		ResolutionNotes:   t.ResolutionNotes,
	}
}

// FromTickets maps a ticket slice.
func FromTickets(tickets []domain.Ticket) []TicketSummary {
	out := make([]TicketSummary, 0, len(tickets))
	for i := range tickets {
		out = append(out, FromTicket(&tickets[i]))
	}
	return out
}

// FromMessage maps a domain message.
func FromMessage(m *domain.TicketMessage) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		TicketID:    m.TicketID,
		AuthorID:    m.AuthorID,
		AuthorName:  m.AuthorName,
		IsAdmin:     m.IsAdmin,
		Body:        m.Body,
		Attachments: m.Attachments,
		AudioURL:    m.AudioURL,
		ReplyToID:   m.ReplyToID,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
	}
}

// FromMessages maps a message slice.
func FromMessages(msgs []domain.TicketMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, FromMessage(&msgs[i]))
	}
	return out
}
