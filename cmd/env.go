package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobcheck/internal/checker"
	"github.com/sells-group/jobcheck/internal/detect"
	"github.com/sells-group/jobcheck/internal/monitoring"
	"github.com/sells-group/jobcheck/internal/notify"
	"github.com/sells-group/jobcheck/internal/resilience"
	"github.com/sells-group/jobcheck/internal/runner"
	"github.com/sells-group/jobcheck/internal/search"
	"github.com/sells-group/jobcheck/internal/store"
)

// jobEnv holds the store and the assembled check pipeline used by the serve
// and check commands.
type jobEnv struct {
	Store       store.Store
	Search      *search.Service
	Coordinator *runner.Coordinator
}

// Close releases the store.
func (e *jobEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initJobEnv wires search, detection, notification and the run coordinator
// around a freshly opened store. Callers should defer env.Close().
func initJobEnv(ctx context.Context) (*jobEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewServiceBreakers(resilience.CircuitFromConfig(cfg.Resilience))

	searchBreaker := resilience.CircuitFromConfig(cfg.Resilience)
	searchBreaker.ShouldTrip = search.Trips
	searchBreaker.OnStateChange = resilience.StateLogger("serper")
	svc := search.NewFromConfig(cfg.Serper, search.WithBreaker(resilience.NewCircuitBreaker(searchBreaker)))

	chk := checker.New(
		svc,
		st,
		notify.NewFromConfig(cfg, breakers),
		detect.NewAnalyzer(detect.NewPolicy(cfg.Detect)),
		checker.WithEvidenceLimit(cfg.Checker.EvidenceN),
	)

	opts := []runner.Option{
		runner.WithDelay(time.Duration(cfg.Checker.DelayMS) * time.Millisecond),
		runner.WithRecorder(st),
		runner.WithObserver(monitoring.NewAlerter(cfg.Monitoring)),
	}
	if cfg.Checker.LockFile != "" {
		opts = append(opts, runner.WithLockFile(cfg.Checker.LockFile))
	}

	return &jobEnv{
		Store:       st,
		Search:      svc,
		Coordinator: runner.NewCoordinator(st, chk, opts...),
	}, nil
}
