package notify

// Toast is an in-app notification frame.
type Toast struct {
	TicketID string `json:"ticket_id"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// PlatformNote asks the client to raise an operating-system level
// notification. Tag deduplicates/replaces earlier notes for the same
// ticket; it does not suppress repeats.
type PlatformNote struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Tag                string `json:"tag"`
	RequireInteraction bool   `json:"require_interaction"`
}

// BadgeUpdate carries fresh unread counts for one ticket plus the badge
// total across all tracked tickets.
type BadgeUpdate struct {
	TicketID string `json:"ticket_id"`
	Messages int    `json:"messages"`
	Status   int    `json:"status"`
	Total    int    `json:"total"`
}

// Notifier delivers session-facing notifications. Implementations must be
// non-blocking; the center fires them while holding its state lock.
type Notifier interface {
	Toast(t Toast)
	// Platform may fail when the platform channel is unavailable or
	// permission was denied; the center degrades silently to toast-only.
	Platform(n PlatformNote) error
	Badge(b BadgeUpdate)
}

// NopNotifier discards everything. Used where a session has no push
// channel attached.
type NopNotifier struct{}

func (NopNotifier) Toast(Toast) {}

func (NopNotifier) Platform(PlatformNote) error { return nil }

func (NopNotifier) Badge(BadgeUpdate) {}
