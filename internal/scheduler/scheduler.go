package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/claimward/internal/clock"
	obsmetrics "github.com/smallbiznis/claimward/internal/observability/metrics"
	"github.com/smallbiznis/claimward/internal/upkeep"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Engine *upkeep.Engine
	Config Config `optional:"true"`
}

// Scheduler drives the upkeep engine on a fixed tick. Job order matters:
// charging first keeps solvent claims out of the sweep, recovery runs before
// expiry so a replenished claim is never forfeited in the same pass.
type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	clock  clock.Clock
	engine *upkeep.Engine
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Engine == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:    p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    p.Config.withDefaults(),
		clock:  p.Clock,
		engine: p.Engine,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	engineMetrics := obsmetrics.Engine()
	engineMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	run.AddProcessed(processed)
	engineMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	engineMetrics.AddBatchProcessed(name, processed)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		engineMetrics.IncJobTimeout(name)
	}
	engineMetrics.IncJobError(name, err)
	if isTimeout {
		// Soft timeout. The pass stops where it is and the next tick
		// resumes from a fresh scan.
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"charge_due", s.isJobEnabled("charge_due"), func(ctx context.Context) error {
			return s.runJob(ctx, "charge_due", s.cfg.MaxChargeBatchSize, s.cfg.JobTimeout, func(ctx context.Context) (int, error) {
				return s.engine.ChargeDue(ctx, s.cfg.MaxChargeBatchSize)
			})
		}},
		{"grace_sweep", s.isJobEnabled("grace_sweep"), func(ctx context.Context) error {
			return s.runJob(ctx, "grace_sweep", s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) (int, error) {
				return s.engine.SweepGrace(ctx, s.cfg.BatchSize)
			})
		}},
		{"grace_recovery", s.isJobEnabled("grace_recovery"), func(ctx context.Context) error {
			return s.runJob(ctx, "grace_recovery", s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) (int, error) {
				return s.engine.Recover(ctx, s.cfg.BatchSize)
			})
		}},
		{"grace_expiry", s.isJobEnabled("grace_expiry"), func(ctx context.Context) error {
			return s.runJob(ctx, "grace_expiry", s.cfg.MaxExpiryBatchSize, s.cfg.ExpiryJobTimeout, func(ctx context.Context) (int, error) {
				return s.engine.Expire(ctx, s.cfg.MaxExpiryBatchSize)
			})
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	engineMetrics := obsmetrics.Engine()

	for {
		if runLag := s.loopLag(nextRun); runLag > 0 {
			engineMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loopLag measures how far behind schedule the loop is, on the scheduler's
// own clock. The ticker stays on wall time.
func (s *Scheduler) loopLag(nextRun time.Time) time.Duration {
	return s.clock.Now().Sub(nextRun)
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs runs everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
