package domain

import "time"

// ReferralStatus enumerates hand-off lifecycle states.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "PENDING"
	ReferralStatusAccepted  ReferralStatus = "ACCEPTED"
	ReferralStatusDeclined  ReferralStatus = "DECLINED"
	ReferralStatusCancelled ReferralStatus = "CANCELLED"
)

// TicketReferral is an admin-to-admin hand-off proposal for an assigned,
// non-terminal ticket.
type TicketReferral struct {
	ID              string         `json:"id"`
	TicketID        string         `json:"ticket_id"`
	ReferringAdmin  string         `json:"referring_admin_id"`
	ReferredAdmin   string         `json:"referred_admin_id"`
	Status          ReferralStatus `json:"status"`
	Message         string         `json:"message"`
	CreatedAt       time.Time      `json:"created_at"`
	RespondedAt     *time.Time     `json:"responded_at"`
}

// Terminal reports whether the referral can no longer transition.
func (r *TicketReferral) Terminal() bool {
	return r.Status != ReferralStatusPending
}
