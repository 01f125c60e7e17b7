package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/runplane/config"
	"github.com/target/runplane/internal/adapters/redisevents"
	"github.com/target/runplane/internal/core"
	"github.com/target/runplane/internal/data"
	domainrun "github.com/target/runplane/internal/domain/run"
	"github.com/target/runplane/internal/service"
)

// shutdownWaitTimeout is the maximum time to wait for background services
// to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs   *service.JobService
	Runs   *service.RunService
	Reaper *service.ReaperService
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient *redis.Client
	Logger      *slog.Logger
}

// NewServices wires repositories, the lease policy and the optional run
// event publisher into the application services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobRepo := data.NewJobRepo(deps.DB)
	runRepo := data.NewRunRepo(deps.DB)

	lease, err := domainrun.NewLeasePolicy(
		deps.Config.Runs.MinLeaseDuration,
		deps.Config.Runs.MaxLeaseDuration,
	)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build lease policy: %w", err)
	}

	events := buildEventPublisher(deps.Config.Runs, deps.RedisClient, logger)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		DB:     deps.DB,
		Jobs:   jobRepo,
		Runs:   runRepo,
		Events: events,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	runs, err := service.NewRunService(service.RunServiceOptions{
		DB:     deps.DB,
		Runs:   runRepo,
		Jobs:   jobRepo,
		Lease:  lease,
		Events: events,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build run service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:   runRepo,
		Config: deps.Config.Reaper,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build reaper service: %w", err)
	}

	return ServiceContainer{
		Jobs:   jobs,
		Runs:   runs,
		Reaper: reaper,
	}, nil
}

// buildEventPublisher returns a Redis-backed publisher when run events
// are enabled and a Redis client is connected, nil otherwise. Services
// treat a nil publisher as a no-op.
func buildEventPublisher(cfg config.RunsConfig, client *redis.Client, logger *slog.Logger) core.EventPublisher {
	if !cfg.EventsEnabled || client == nil {
		return nil
	}
	return redisevents.NewPublisher(redisevents.PublisherOptions{
		Client:  client,
		Channel: cfg.EventsChannel,
		Logger:  logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, logger *slog.Logger, errCh chan<- error, descriptor backgroundService) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			select {
			case errCh <- fmt.Errorf("%s failed: %w", descriptor.name, err):
			case <-ctx.Done():
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until a shutdown signal is received or a service
// fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, len(enabled)+1)

	var httpServer *http.Server
	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var backgrounds []backgroundServiceHandle
	if enabled[config.ServiceModeReaper] {
		done := launchBackground(serviceCtx, logger, errCh, backgroundService{
			mode:  config.ServiceModeReaper,
			name:  "reaper",
			start: cfg.Services.Reaper.Run,
		})
		backgrounds = append(backgrounds, backgroundServiceHandle{name: "reaper", done: done})
	}

	return waitForShutdown(shutdownConfig{
		ctx:          serviceCtx,
		cancel:       cancel,
		errCh:        errCh,
		httpServer:   httpServer,
		drainTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:       logger,
		backgrounds:  backgrounds,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	drainTimeout time.Duration
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
}

// waitForShutdown waits for a shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains the HTTP server, then waits for background
// services to finish.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(context.Background(), cfg.httpServer, cfg.drainTimeout, cfg.logger); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	return nil
}

// waitForService waits for a service to finish, bounded by the shutdown
// timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
