package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/stream"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// SettingsService caches the central settings row and keeps it current by
// watching the change stream. Readers never hit the database.
type SettingsService struct {
	repo   repository.SettingsRepository
	feed   stream.Broker
	logger *zap.Logger

	mu      sync.RWMutex
	current domain.AppSettings
	sub     stream.Subscription
}

// NewSettingsService constructs the service with safe defaults; Start
// loads the persisted row.
func NewSettingsService(repo repository.SettingsRepository, feed stream.Broker, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		feed:   feed,
		logger: logger,
		current: domain.AppSettings{
			ID:                      "default",
			AutoCloseThresholdHours: 24,
		},
	}
}

// Start loads current settings and subscribes to updates.
func (s *SettingsService) Start(ctx context.Context) error {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = *settings
	s.mu.Unlock()

	sub, err := s.feed.Subscribe(stream.TableAppSettings, stream.OpUpdate, nil, s.handleUpdate)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *SettingsService) handleUpdate(event stream.ChangeEvent) {
	var next domain.AppSettings
	if err := event.DecodeNew(&next); err != nil {
		s.logger.Warn("settings change event undecodable", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	s.logger.Info("settings reloaded",
		zap.Int("auto_close_threshold_hours", next.AutoCloseThresholdHours),
		zap.Bool("maintenance_mode", next.MaintenanceMode))
}

// Current returns a copy of the cached settings.
func (s *SettingsService) Current() domain.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AutoCloseThreshold returns the live sweep threshold.
func (s *SettingsService) AutoCloseThreshold() time.Duration {
	cur := s.Current()
	return cur.AutoCloseThreshold(24 * time.Hour)
}

// MaintenanceMode reports whether the maintenance gate is up, with the
// operator-facing message.
func (s *SettingsService) MaintenanceMode() (bool, string) {
	cur := s.Current()
	return cur.MaintenanceMode, cur.MaintenanceMessage
}

// Update persists new settings; the change event refreshes every cache,
// this instance included.
func (s *SettingsService) Update(ctx context.Context, settings *domain.AppSettings) (*domain.AppSettings, error) {
	if settings.AutoCloseThresholdHours <= 0 {
		return nil, apperrors.NewValidationError("auto close threshold must be positive", nil)
	}
	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, apperrors.MapError(err)
	}
	return settings, nil
}

// Close disposes the stream subscription.
func (s *SettingsService) Close() {
	if s.sub != nil {
		s.sub.Close()
	}
}
