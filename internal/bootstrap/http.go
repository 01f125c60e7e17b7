package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/runplane/config"
	httpx "github.com/target/runplane/internal/http"
)

// HTTPServerConfig groups dependencies for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer builds the API handler and starts serving in the
// background. Listen errors are logged, not returned; the process shuts
// down through the orchestration error channel instead.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := buildHTTPHandler(cfg.Services, logger)
	return startServer(cfg.Config.HTTP, handler, logger)
}

func buildHTTPHandler(services ServiceContainer, logger *slog.Logger) http.Handler {
	router := httpx.NewRouter(httpx.RouterServices{
		Jobs:   services.Jobs,
		Runs:   services.Runs,
		Logger: logger,
	})

	var handler http.Handler = router
	handler = httpx.Logging(logger)(handler)
	handler = httpx.Recover(logger)(handler)
	return handler
}

func startServer(cfg config.HTTPConfig, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return server
}

// ShutdownHTTPServer drains in-flight requests within the given
// timeout.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("shutting down http server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		return err
	}
	return nil
}
