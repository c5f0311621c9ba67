package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobcheck/internal/api"
	"github.com/sells-group/jobcheck/internal/runner"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the job check scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if serveNoSchedule {
			cfg.Checker.NoSchedule = true
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initJobEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := runner.NewScheduler(env.Coordinator, cfg.Checker.Schedule, cfg.Checker.Timezone)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(api.Deps{
				People:      env.Store,
				Runs:        env.Store,
				Jobs:        sched,
				Status:      env.Coordinator,
				Search:      env.Search,
				Scheduled:   !cfg.Checker.NoSchedule,
				CORSOrigins: cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		if !cfg.Checker.NoSchedule {
			sched.Start(gctx)
			zap.L().Info("job check scheduler started",
				zap.String("schedule", cfg.Checker.Schedule),
				zap.Time("next_run", sched.Next()),
			)
		}

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			sched.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "server shutdown")
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "serve the API without firing scheduled runs")
	rootCmd.AddCommand(serveCmd)
}
