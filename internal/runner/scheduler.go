package runner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
)

// DefaultSchedule fires every Sunday at 02:00.
const DefaultSchedule = "0 2 * * 0"

// Runner starts a run with the given trigger.
type Runner interface {
	Run(ctx context.Context, trigger model.Trigger) (*model.RunSummary, error)
}

// Scheduler fires runs on a cron calendar and exposes a manual trigger.
// It keeps no run state of its own.
type Scheduler struct {
	runner   Runner
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
}

// NewScheduler parses a standard five-field cron expression in the named
// timezone. An empty expression uses DefaultSchedule; an empty or "Local"
// timezone uses the host zone.
func NewScheduler(runner Runner, expr, timezone string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, eris.Wrapf(err, "runner: parse schedule %q", expr)
	}

	loc := time.Local
	if timezone != "" && timezone != "Local" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, eris.Wrapf(err, "runner: load timezone %q", timezone)
		}
	}

	return &Scheduler{
		runner:   runner,
		expr:     expr,
		schedule: schedule,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Start begins firing scheduled runs. Runs use ctx, so cancelling it ends an
// active scheduled run at its next pause.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	s.baseCtx = ctx
	s.cron = cron.NewWithLocation(s.loc)
	s.cron.Schedule(s.schedule, cron.FuncJob(s.fire))
	s.cron.Start()

	zap.L().Info("scheduler started",
		zap.String("component", "runner.scheduler"),
		zap.String("schedule", s.expr),
		zap.String("timezone", s.loc.String()),
		zap.Time("next_run", s.Next()),
	)
}

// Stop stops firing. A run already in flight is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	zap.L().Info("scheduler stopped", zap.String("component", "runner.scheduler"))
}

// Trigger starts a manual run through the same entry point as scheduled runs.
func (s *Scheduler) Trigger(ctx context.Context) (*model.RunSummary, error) {
	return s.runner.Run(ctx, model.TriggerManual)
}

// Next returns the next scheduled fire time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	log := zap.L().With(zap.String("component", "runner.scheduler"))
	run, err := s.runner.Run(ctx, model.TriggerScheduled)
	switch {
	case IsSkipped(err):
		log.Info("scheduled run skipped, another run is in progress")
	case err != nil:
		log.Error("scheduled run failed", zap.Error(err))
	default:
		log.Info("scheduled run finished",
			zap.String("status", string(run.Status)),
			zap.Time("next_run", s.Next()),
		)
	}
}
