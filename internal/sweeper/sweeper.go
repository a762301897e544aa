package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"guildwarden/internal/metrics"
)

type WindowSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type StrikeSweeper interface {
	Sweep(now time.Time) int
}

type LogCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

type Config struct {
	SweepSchedule   string
	CleanupSchedule string
	RetentionDays   int
}

// Scheduler runs the periodic rate window sweep, strike reset and
// message log cleanup.
type Scheduler struct {
	cfg     Config
	windows WindowSweeper
	strikes StrikeSweeper
	logs    LogCleaner
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	cron    *cron.Cron
}

func New(cfg Config, windows WindowSweeper, strikes StrikeSweeper, logs LogCleaner, logger *zap.Logger, recorder *metrics.Recorder) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		windows: windows,
		strikes: strikes,
		logs:    logs,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.SweepSchedule, func() { s.SweepOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.SweepSchedule, err)
	}
	if s.logs != nil && s.cfg.RetentionDays > 0 {
		if _, err := c.AddFunc(s.cfg.CleanupSchedule, func() { s.CleanupOnce(context.Background()) }); err != nil {
			return fmt.Errorf("schedule cleanup %q: %w", s.cfg.CleanupSchedule, err)
		}
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", zap.String("sweep", s.cfg.SweepSchedule), zap.String("cleanup", s.cfg.CleanupSchedule))
	return nil
}

// Stop waits for running jobs or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) SweepOnce(ctx context.Context) {
	now := s.now()
	if s.windows != nil {
		removed, err := s.windows.Sweep(ctx, now)
		if err != nil {
			s.logger.Warn("rate window sweep failed", zap.Error(err))
		}
		s.metrics.Swept(ctx, "rate_window", removed)
	}
	if s.strikes != nil {
		cleared := s.strikes.Sweep(now)
		s.metrics.Swept(ctx, "strike", cleared)
		if cleared > 0 {
			s.logger.Debug("strikes cleared", zap.Int("count", cleared))
		}
	}
}

func (s *Scheduler) CleanupOnce(ctx context.Context) {
	removed, err := s.logs.Cleanup(ctx, s.cfg.RetentionDays)
	if err != nil {
		s.logger.Warn("message log cleanup failed", zap.Error(err))
		return
	}
	s.metrics.Swept(ctx, "message_log", int(removed))
	s.logger.Info("message logs cleaned", zap.Int64("removed", removed), zap.Int("retention_days", s.cfg.RetentionDays))
}
