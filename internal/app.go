// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/database"
	"sitepulse/internal/jobs"
	"sitepulse/internal/keepalive"
	"sitepulse/internal/kv"
	"sitepulse/internal/notify"
)

// Services holds the domain components shared by the HTTP routes, the
// background jobs and the admin CLI.
type Services struct {
	Config    *config.Config
	Store     kv.Store
	Gateway   *analytics.Gateway
	Reporter  *analytics.Reporter
	KeepAlive *keepalive.Service
	Publisher notify.Publisher
	Scheduler *jobs.Scheduler

	// Local is nil when page views live in the remote engine.
	Local *analytics.LocalTransport
}

// NewServices wires every component over db according to cfg.
func NewServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Services, error) {
	s := &Services{
		Config: cfg,
		Store:  kv.NewSQLStore(db, logger),
	}

	var (
		transport analytics.Transport
		table     string
	)
	switch cfg.AnalyticsMode {
	case config.AnalyticsREST:
		transport = analytics.NewRESTTransport(analytics.RESTConfig{
			SQLEndpoint:   cfg.SQLEndpoint(),
			WriteEndpoint: cfg.AnalyticsWriteEndpoint,
			APIToken:      cfg.AnalyticsAPIToken,
			Timeout:       cfg.AnalyticsTimeout(),
		}, logger)
		table = cfg.AnalyticsDataset
	default:
		s.Local = analytics.NewLocalTransport(db, logger)
		transport = s.Local
		table = analytics.LocalTable
	}

	gateway, err := analytics.NewGateway(transport, table, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analytics gateway: %w", err)
	}
	s.Gateway = gateway
	s.Reporter = analytics.NewReporter(gateway, analytics.ReporterConfig{
		Site:      cfg.AnalyticsSite,
		PageLimit: cfg.RankPageLimit,
		Location:  cfg.Location(),
	}, logger)

	publisher, err := notify.New(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		logger.Warn("NATS unavailable, keep-alive outcomes will not be published", slog.Any("error", err))
		publisher = &notify.NoopPublisher{}
	}
	s.Publisher = publisher

	pinger := keepalive.NewHTTPPinger(keepalive.PingerConfig{
		Endpoint:     cfg.KeepAliveEndpoint,
		UserAgent:    cfg.KeepAliveUserAgent,
		Referrer:     cfg.KeepAliveReferrer,
		LoginMarkers: cfg.KeepAliveLoginMarkers,
		Timeout:      cfg.KeepAliveTimeout(),
	}, logger)
	s.KeepAlive = keepalive.NewService(s.Store, keepalive.ServiceConfigFromConfig(cfg), pinger, publisher, logger)

	var cleanup *jobs.CleanupJob
	if s.Local != nil {
		cleanup = jobs.NewCleanupJob(s.Local, cfg.PageViewsRetentionDays, logger)
	}
	scheduler, err := jobs.NewScheduler(jobs.SchedulerConfig{
		SweepSpec: cfg.SweepSchedule,
		Schedule:  s.KeepAlive.Schedule(),
	}, s.KeepAlive, cleanup, logger)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}
	s.Scheduler = scheduler

	return s, nil
}

// Close releases connections held by the services.
func (s *Services) Close() error {
	return s.Publisher.Close()
}

// Application wraps cartridge.Application with sitepulse-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // sitepulse-specific DB manager with migration methods
	Services  *Services
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := NewServices(cfg, dbManager.GetConnection(), logger)
	if err != nil {
		return nil, err
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    services.MountRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{services.Scheduler},
	})
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}

// Shutdown stops the server and background jobs, then closes the services.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Application.Shutdown(ctx)
	if cerr := a.Services.Close(); err == nil {
		err = cerr
	}
	return err
}
