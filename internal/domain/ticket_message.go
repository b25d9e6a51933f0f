package domain

import "time"

// TicketMessage captures one entry in a ticket's chat thread. Append-only
// except for edit-in-place, which stamps EditedAt.
type TicketMessage struct {
	ID          string         `json:"id"`
	TicketID    string         `json:"ticket_id"`
	AuthorID    string         `json:"author_id"`
	AuthorName  string         `json:"author_name"`
	IsAdmin     bool           `json:"is_admin"`
	Body        string         `json:"body"`
	Attachments AttachmentList `json:"attachments"`
	AudioURL    *string        `json:"audio_url"`
	ReplyToID   *string        `json:"reply_to_id"`
	EditedAt    *time.Time     `json:"edited_at"`
	CreatedAt   time.Time      `json:"created_at"`
}
