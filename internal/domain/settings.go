package domain

import "time"

// AppSettings is the single centrally stored configuration row. Changes are
// published on the change stream so running sessions hot-reload them.
type AppSettings struct {
	ID                      string    `json:"id"`
	AutoCloseThresholdHours int       `json:"auto_close_threshold_hours"`
	MaintenanceMode         bool      `json:"maintenance_mode"`
	MaintenanceMessage      string    `json:"maintenance_message"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// AutoCloseThreshold converts the stored hour count to a duration,
// falling back to the given default when unset.
func (s *AppSettings) AutoCloseThreshold(fallback time.Duration) time.Duration {
	if s == nil || s.AutoCloseThresholdHours <= 0 {
		return fallback
	}
	return time.Duration(s.AutoCloseThresholdHours) * time.Hour
}
