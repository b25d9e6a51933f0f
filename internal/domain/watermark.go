package domain

import "time"

// NotificationWatermark records the last instant a user is known to have
// viewed a ticket's messages and status. Composite key (user_id, ticket_id).
// It is the sole persistent state preventing duplicate notifications across
// sessions and devices for one identity.
type NotificationWatermark struct {
	UserID              string    `json:"user_id"`
	TicketID            string    `json:"ticket_id"`
	LastMessageViewedAt time.Time `json:"last_message_viewed_at"`
	LastStatusViewedAt  time.Time `json:"last_status_viewed_at"`
}
