package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/runplane/config"
	"github.com/target/runplane/internal/core"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo   core.ReaperRepository // Required: reaper repository
	Config config.ReaperConfig   // Required: reaper configuration
	Logger *slog.Logger          // Optional: structured logger
}

// ReaperService deletes completed runs older than the configured
// retention window to keep the job_runs table bounded. It never touches
// scheduled or in-progress runs: lease expiry is not a state transition
// and stale leases are reclaimed by assignment, not by the reaper.
type ReaperService struct {
	repo   core.ReaperRepository
	config config.ReaperConfig
	logger *slog.Logger
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &ReaperService{
		repo:   opts.Repo,
		config: opts.Config,
		logger: opts.Logger.With("component", "reaper_service"),
	}, nil
}

// Run starts the cleanup loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"completed_max_age", s.config.CompletedMaxAge,
	)

	// Jitter spreads concurrent instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter delays up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// runCleanup deletes old completed runs in batches until a batch comes
// back empty.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.config.CompletedMaxAge)

	var totalCount int64
	for {
		count, err := s.repo.DeleteCompletedBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old completed runs: %w", err)
		}
		totalCount += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if totalCount > 0 {
		s.logger.InfoContext(ctx, "deleted old completed runs",
			"count", totalCount,
			"max_age", s.config.CompletedMaxAge,
		)
	}
	return nil
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
