package domain

import "time"

// User is the domain model for end-users who file tickets.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Suspended     bool       `json:"suspended"`
	SuspendReason *string    `json:"suspend_reason"`
	SuspendedAt   *time.Time `json:"suspended_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
