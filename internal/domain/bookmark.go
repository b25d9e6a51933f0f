package domain

import "time"

// TicketBookmark marks a ticket an admin wants to keep an eye on.
type TicketBookmark struct {
	AdminID   string    `json:"admin_id"`
	TicketID  string    `json:"ticket_id"`
	CreatedAt time.Time `json:"created_at"`
}
