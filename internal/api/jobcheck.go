package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/runner"
)

type statusResponse struct {
	Running bool              `json:"running"`
	LastRun *model.RunSummary `json:"last_run"`
	NextRun *time.Time        `json:"next_run"`
}

// handleRun runs a full check synchronously. The run is detached from the
// request so a dropped connection does not abort it.
func handleRun(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := d.Jobs.Trigger(context.WithoutCancel(r.Context()))
		if errors.Is(err, runner.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"skipped": true,
				"error":   "a job check run is already in progress",
			})
			return
		}
		if err != nil {
			zap.L().Error("api: manual run failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "failed to run job check")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := d.Status.Status()
		resp := statusResponse{Running: st.Running, LastRun: st.LastRun}

		if resp.LastRun == nil && d.Runs != nil {
			last, err := d.Runs.LatestRun(r.Context())
			if err != nil {
				zap.L().Warn("api: load latest run", zap.Error(err))
			}
			resp.LastRun = last
		}
		if d.Scheduled {
			next := d.Jobs.Next()
			if !next.IsZero() {
				resp.NextRun = &next
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
