package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/stream"
)

type sweepTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
}

func (r *sweepTicketRepo) Create(context.Context, *domain.Ticket) error { return nil }
func (r *sweepTicketRepo) Update(context.Context, *domain.Ticket) error { return nil }
func (r *sweepTicketRepo) GetByID(context.Context, string) (*domain.Ticket, error) {
	return nil, nil
}
func (r *sweepTicketRepo) GetByNumber(context.Context, string) (*domain.Ticket, error) {
	return nil, nil
}
func (r *sweepTicketRepo) ListWithFilter(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *sweepTicketRepo) CloseAgedResolved(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []domain.Ticket
	for id, ticket := range r.tickets {
		if ticket.Status != domain.TicketStatusResolved {
			continue
		}
		if ticket.AdminResolvedAt == nil || ticket.AdminResolvedAt.After(cutoff) {
			continue
		}
		ticket.Status = domain.TicketStatusClosed
		r.tickets[id] = ticket
		closed = append(closed, ticket)
	}
	return closed, nil
}

func (r *sweepTicketRepo) statuses() map[string]domain.TicketStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.TicketStatus, len(r.tickets))
	for id, ticket := range r.tickets {
		out[id] = ticket.Status
	}
	return out
}

type fixedSettingsRepo struct {
	settings domain.AppSettings
}

func (r *fixedSettingsRepo) Get(context.Context) (*domain.AppSettings, error) {
	copied := r.settings
	return &copied, nil
}

func (r *fixedSettingsRepo) Update(_ context.Context, settings *domain.AppSettings) error {
	r.settings = *settings
	return nil
}

func newTestWorker(t *testing.T, repo *sweepTicketRepo, thresholdHours int, now time.Time) *AutoCloseWorker {
	t.Helper()
	feed := stream.NewMemoryBroker()
	settings := service.NewSettingsService(&fixedSettingsRepo{
		settings: domain.AppSettings{ID: "default", AutoCloseThresholdHours: thresholdHours},
	}, feed, zap.NewNop())
	if err := settings.Start(context.Background()); err != nil {
		t.Fatalf("start settings: %v", err)
	}
	t.Cleanup(settings.Close)

	return NewAutoCloseWorker(AutoCloseDependencies{
		TicketRepo: repo,
		Settings:   settings,
		Logger:     zap.NewNop(),
		Interval:   time.Hour,
		Now:        func() time.Time { return now },
	})
}

func TestSweepClosesOnlyAgedResolved(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	old := now.Add(-25 * time.Hour)
	fresh := now.Add(-2 * time.Hour)
	repo := &sweepTicketRepo{tickets: map[string]domain.Ticket{
		"aged":     {ID: "aged", Status: domain.TicketStatusResolved, AdminResolvedAt: &old},
		"fresh":    {ID: "fresh", Status: domain.TicketStatusResolved, AdminResolvedAt: &fresh},
		"open":     {ID: "open", Status: domain.TicketStatusOpen},
		"finished": {ID: "finished", Status: domain.TicketStatusClosed, AdminResolvedAt: &old},
	}}
	worker := newTestWorker(t, repo, 24, now)

	closed, err := worker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	statuses := repo.statuses()
	if statuses["aged"] != domain.TicketStatusClosed {
		t.Fatalf("aged ticket not closed: %s", statuses["aged"])
	}
	if statuses["fresh"] != domain.TicketStatusResolved {
		t.Fatalf("fresh ticket closed early: %s", statuses["fresh"])
	}
	if statuses["open"] != domain.TicketStatusOpen {
		t.Fatalf("open ticket touched: %s", statuses["open"])
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	repo := &sweepTicketRepo{tickets: map[string]domain.Ticket{
		"a": {ID: "a", Status: domain.TicketStatusResolved, AdminResolvedAt: &old},
		"b": {ID: "b", Status: domain.TicketStatusResolved, AdminResolvedAt: &old},
	}}
	worker := newTestWorker(t, repo, 24, now)
	ctx := context.Background()

	first, err := worker.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := worker.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if first != 2 || second != 0 {
		t.Fatalf("sweep counts = (%d, %d), want (2, 0)", first, second)
	}

	statuses := repo.statuses()
	if statuses["a"] != domain.TicketStatusClosed || statuses["b"] != domain.TicketStatusClosed {
		t.Fatalf("final statuses = %v", statuses)
	}
}

func TestSweepThresholdHotReload(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	sixHoursAgo := now.Add(-6 * time.Hour)
	repo := &sweepTicketRepo{tickets: map[string]domain.Ticket{
		"a": {ID: "a", Status: domain.TicketStatusResolved, AdminResolvedAt: &sixHoursAgo},
	}}

	feed := stream.NewMemoryBroker()
	settings := service.NewSettingsService(&fixedSettingsRepo{
		settings: domain.AppSettings{ID: "default", AutoCloseThresholdHours: 24},
	}, feed, zap.NewNop())
	if err := settings.Start(context.Background()); err != nil {
		t.Fatalf("start settings: %v", err)
	}
	t.Cleanup(settings.Close)

	worker := NewAutoCloseWorker(AutoCloseDependencies{
		TicketRepo: repo,
		Settings:   settings,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return now },
	})
	ctx := context.Background()

	if closed, _ := worker.Sweep(ctx); closed != 0 {
		t.Fatalf("sweep under 24h threshold closed %d, want 0", closed)
	}

	// Central threshold drops to 4 hours; the change event retunes the
	// cache without a restart.
	event, err := stream.NewEvent(stream.TableAppSettings, stream.OpUpdate,
		domain.AppSettings{ID: "default", AutoCloseThresholdHours: 24},
		domain.AppSettings{ID: "default", AutoCloseThresholdHours: 4})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	if err := feed.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if closed, _ := worker.Sweep(ctx); closed != 1 {
		t.Fatalf("sweep under reloaded threshold closed %d, want 1", closed)
	}
}
