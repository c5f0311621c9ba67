package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/runner"
	"github.com/sells-group/jobcheck/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run job checks and inspect run history",
}

// -- check run --

var checkRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every tracked person once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initJobEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Coordinator.Run(ctx, model.TriggerCLI)
		if runner.IsSkipped(err) {
			fmt.Fprintln(os.Stderr, "A job check run is already in progress.")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "check run")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, summary)
		}
		formatRunSummary(os.Stdout, summary)
		if summary.Status == model.RunStatusFailed {
			return eris.Errorf("check run failed: %s", summary.Error)
		}
		return nil
	},
}

// -- check status --

var checkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.LatestRun(ctx)
		if err != nil {
			return eris.Wrap(err, "check status")
		}
		if run == nil {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, run)
		}
		formatRunSummary(os.Stdout, run)
		return nil
	},
}

// -- check history --

var checkHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		trigger, _ := cmd.Flags().GetString("trigger")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:  model.RunStatus(status),
			Trigger: model.Trigger(trigger),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "check history")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	checkRunCmd.Flags().Bool("json", false, "print the run summary as JSON")
	checkStatusCmd.Flags().Bool("json", false, "print the run summary as JSON")

	checkHistoryCmd.Flags().String("status", "", "filter by run status (complete, failed, canceled)")
	checkHistoryCmd.Flags().String("trigger", "", "filter by trigger (scheduled, manual, cli)")
	checkHistoryCmd.Flags().Int("limit", 20, "max number of runs to display")

	checkCmd.AddCommand(checkRunCmd)
	checkCmd.AddCommand(checkStatusCmd)
	checkCmd.AddCommand(checkHistoryCmd)
	rootCmd.AddCommand(checkCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
