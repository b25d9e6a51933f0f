package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/api/ws"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/stream"
	"github.com/spec-kit/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	feed := stream.NewRedisBroker(redis.Client, cfg.Notification.ChannelPrefix, logger)
	defer feed.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool, feed)
	messageRepo := repository.NewTicketMessageRepository(pool, feed)
	watermarkRepo := repository.NewWatermarkRepository(pool)
	referralRepo := repository.NewReferralRepository(pool, feed)
	bookmarkRepo := repository.NewBookmarkRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool, feed)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo, adminRepo)

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   userRepo,
		AdminRepo:  adminRepo,
		Tokens:     tokens,
		Logger:     logger,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  messageRepo,
		BookmarkRepo: bookmarkRepo,
	})
	referralService := service.NewReferralService(service.ReferralDependencies{
		ReferralRepo: referralRepo,
		TicketRepo:   ticketRepo,
		AdminRepo:    adminRepo,
		Logger:       logger,
		Window:       cfg.Referral.PermissionWindow(),
	})
	settingsService := service.NewSettingsService(settingsRepo, feed, logger)
	if err := settingsService.Start(ctx); err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}
	defer settingsService.Close()

	autoclose := worker.NewAutoCloseWorker(worker.AutoCloseDependencies{
		TicketRepo: ticketRepo,
		Settings:   settingsService,
		Logger:     logger,
		Metrics:    metrics,
		Interval:   cfg.AutoClose.Interval(),
	})
	go autoclose.Run(ctx)

	registry := notify.NewRegistry()
	hub := ws.NewHub(logger)
	go hub.Run(ctx.Done())

	pushServer := ws.NewServer(ws.ServerDependencies{
		Hub:      hub,
		Auth:     authMiddleware,
		Registry: registry,
		CenterDeps: notify.Deps{
			Watermarks: watermarkRepo,
			Messages:   messageRepo,
			Tickets:    notify.RepositoryTicketSource{Tickets: ticketRepo},
			Feed:       feed,
			Logger:     logger,
		},
		Logger:     logger,
		Metrics:    metrics,
		SendBuffer: cfg.Notification.SendBuffer,
	})
	go func() {
		if err := pushServer.Listen(ctx, cfg.App.WSAddr()); err != nil {
			logger.Fatal("push listener failed", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Admins:         handlers.NewAdminsHandler(authService, settingsService, autoclose),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AdminTickets:   handlers.NewAdminTicketsHandler(ticketService, referralService),
		Referrals:      handlers.NewReferralsHandler(referralService),
		Notifications:  handlers.NewNotificationsHandler(registry, watermarkRepo),
		AuthMiddleware: authMiddleware,
		Settings:       settingsService,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
