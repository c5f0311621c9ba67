// Package runner drives the person checker over the roster and fires runs
// on a calendar schedule.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
)

// DefaultDelay is the pause between consecutive checks.
const DefaultDelay = 2 * time.Second

// ErrRunInProgress is returned when a run is requested while another one is
// active. Callers treat it as a skip, not a failure.
var ErrRunInProgress = eris.New("runner: job check run already in progress")

// Roster enumerates the people to check.
type Roster interface {
	ListPeople(ctx context.Context) ([]model.Person, error)
}

// PersonChecker checks one person. It never fails; failures are recorded on
// the outcome.
type PersonChecker interface {
	Check(ctx context.Context, p model.Person) model.CheckOutcome
}

// Recorder persists finished runs.
type Recorder interface {
	SaveRun(ctx context.Context, run *model.RunSummary) error
}

// Observer is told about every finished run.
type Observer interface {
	ObserveRun(ctx context.Context, run *model.RunSummary)
}

// State holds the running flag and the last finished run. Both change only
// on the start and finish transitions, under mu.
type State struct {
	mu      sync.Mutex
	running bool
	last    *model.RunSummary
}

func (s *State) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// finish clears the running flag and, when run is non-nil, replaces the
// last-known summary.
func (s *State) finish(run *model.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if run != nil {
		s.last = run
	}
}

// Snapshot returns the running flag and the last finished run.
func (s *State) Snapshot() (running bool, last *model.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.last
}

// Status is the coordinator's view of run state.
type Status struct {
	Running bool              `json:"running"`
	LastRun *model.RunSummary `json:"last_run"`
}

// Coordinator runs the checker over the full roster, one person at a time.
type Coordinator struct {
	roster    Roster
	checker   PersonChecker
	recorder  Recorder
	observers []Observer
	state     *State
	delay     time.Duration
	lockPath  string
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDelay sets the pause between consecutive checks. Negative values are
// ignored; zero disables pacing.
func WithDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRecorder persists every finished run.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithObserver adds an observer of finished runs.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLockFile also takes an advisory file lock for the duration of a run,
// so runs started by separate processes on one host cannot overlap.
func WithLockFile(path string) Option {
	return func(c *Coordinator) { c.lockPath = path }
}

// WithState shares run state with another owner. Mostly useful in tests.
func WithState(s *State) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.state = s
		}
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(roster Roster, checker PersonChecker, opts ...Option) *Coordinator {
	c := &Coordinator{
		roster:  roster,
		checker: checker,
		state:   &State{},
		delay:   DefaultDelay,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status reports whether a run is active and the last finished run.
func (c *Coordinator) Status() Status {
	running, last := c.state.Snapshot()
	return Status{Running: running, LastRun: last}
}

// Run performs one pass over the roster. It returns ErrRunInProgress without
// doing any work when another run is active. A roster failure yields a
// failed summary with no outcomes, not an error.
func (c *Coordinator) Run(ctx context.Context, trigger model.Trigger) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("component", "runner"), zap.String("trigger", string(trigger)))

	if !c.state.tryStart() {
		log.Info("run skipped, another run is in progress")
		return nil, ErrRunInProgress
	}
	var summary *model.RunSummary
	defer func() { c.state.finish(summary) }()

	if c.lockPath != "" {
		lock := flock.New(c.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, eris.Wrapf(err, "runner: acquire lock %s", c.lockPath)
		}
		if !locked {
			log.Info("run skipped, lock held by another process", zap.String("lock", c.lockPath))
			return nil, ErrRunInProgress
		}
		defer func() { _ = lock.Unlock() }()
	}

	summary = c.run(ctx, trigger, log)
	c.complete(ctx, summary, log)
	return summary, nil
}

func (c *Coordinator) run(ctx context.Context, trigger model.Trigger, log *zap.Logger) *model.RunSummary {
	run := &model.RunSummary{
		Trigger:   trigger,
		StartedAt: c.now(),
		Outcomes:  []model.CheckOutcome{},
	}

	people, err := c.roster.ListPeople(ctx)
	if err != nil {
		run.Error = eris.Wrap(err, "runner: list people").Error()
		run.Finish(model.RunStatusFailed, c.now())
		log.Error("run failed, roster unavailable", zap.Error(err))
		return run
	}

	log.Info("run started", zap.Int("people", len(people)))
	for i, p := range people {
		if i > 0 {
			if err := pause(ctx, c.delay); err != nil {
				run.Error = err.Error()
				run.Finish(model.RunStatusCanceled, c.now())
				log.Warn("run canceled", zap.Int("checked", run.TotalChecked), zap.Int("people", len(people)))
				return run
			}
		}
		run.Add(c.checker.Check(ctx, p))
	}

	run.Finish(model.RunStatusComplete, c.now())
	log.Info("run complete",
		zap.Int("total_checked", run.TotalChecked),
		zap.Int("changes_detected", run.ChangesDetected),
		zap.Int("errors", run.ErrorCount),
		zap.Int("notification_failures", run.NotificationFailures),
		zap.Float64("duration_seconds", run.DurationSeconds),
	)
	return run
}

// complete hands the finished run to the recorder and observers. Both run
// on a context that survives cancellation of the run itself.
func (c *Coordinator) complete(ctx context.Context, run *model.RunSummary, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if c.recorder != nil {
		if err := c.recorder.SaveRun(ctx, run); err != nil {
			log.Error("save run failed", zap.Error(err))
		}
	}
	for _, o := range c.observers {
		o.ObserveRun(ctx, run)
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsSkipped reports whether err is the in-progress skip signal.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
