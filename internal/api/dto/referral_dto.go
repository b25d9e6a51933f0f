package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateReferralRequest payload.
type CreateReferralRequest struct {
	ToAdminID string `json:"to_admin_id"`
	Message   string `json:"message"`
}

// RespondReferralRequest payload.
type RespondReferralRequest struct {
	Accepted bool `json:"accepted"`
}

// ReferralResponse response.
type ReferralResponse struct {
	ID             string                `json:"id"`
	TicketID       string                `json:"ticket_id"`
	ReferringAdmin string                `json:"referring_admin_id"`
	ReferredAdmin  string                `json:"referred_admin_id"`
	Status         domain.ReferralStatus `json:"status"`
	Message        string                `json:"message"`
	CreatedAt      time.Time             `json:"created_at"`
	RespondedAt    *time.Time            `json:"responded_at"`
}

// FromReferral maps a domain referral.
func FromReferral(r *domain.TicketReferral) ReferralResponse {
	return ReferralResponse{
		ID:             r.ID,
		TicketID:       r.TicketID,
		ReferringAdmin: r.ReferringAdmin,
		ReferredAdmin:  r.ReferredAdmin,
		Status:         r.Status,
		Message:        r.Message,
		CreatedAt:      r.CreatedAt,
		RespondedAt:    r.RespondedAt,
	}
}

// FromReferrals maps a referral slice.
func FromReferrals(refs []domain.TicketReferral) []ReferralResponse {
	out := make([]ReferralResponse, 0, len(refs))
	for i := range refs {
		out = append(out, FromReferral(&refs[i]))
	}
	return out
}

// SettingsRequest payload for central settings updates.
type SettingsRequest struct {
	AutoCloseThresholdHours int    `json:"auto_close_threshold_hours"`
	MaintenanceMode         bool   `json:"maintenance_mode"`
	MaintenanceMessage      string `json:"maintenance_message"`
}
