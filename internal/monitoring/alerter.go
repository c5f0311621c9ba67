// Package monitoring evaluates finished check runs and posts health alerts
// to a webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed            AlertType = "run_failed"
	AlertCheckErrorRate       AlertType = "check_error_rate"
	AlertNotificationFailures AlertType = "notification_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates finished runs against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks a finished run against thresholds and returns any alerts.
func (a *Alerter) Evaluate(run *model.RunSummary) []Alert {
	if run == nil {
		return nil
	}
	var alerts []Alert
	now := a.now()

	if run.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message:  fmt.Sprintf("Job check run (%s) failed: %s", run.Trigger, run.Error),
			RunID:    run.ID,
			Details: map[string]any{
				"trigger": string(run.Trigger),
				"error":   run.Error,
			},
			Timestamp: now,
		})
		return alerts
	}

	rate := run.ErrorRate()
	if a.cfg.ErrorRateThreshold > 0 && run.TotalChecked >= a.cfg.MinChecked && rate >= a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCheckErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Check error rate %.1f%% meets threshold %.1f%% (%d failed / %d checked)",
				rate*100, a.cfg.ErrorRateThreshold*100, run.ErrorCount, run.TotalChecked,
			),
			RunID: run.ID,
			Details: map[string]any{
				"error_rate":  rate,
				"threshold":   a.cfg.ErrorRateThreshold,
				"failed":      run.ErrorCount,
				"checked":     run.TotalChecked,
				"error_kinds": errorKinds(run),
			},
			Timestamp: now,
		})
	}

	if run.NotificationFailures > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNotificationFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d detected change(s) could not be notified",
				run.NotificationFailures, run.ChangesDetected,
			),
			RunID: run.ID,
			Details: map[string]any{
				"notification_failures": run.NotificationFailures,
				"changes_detected":      run.ChangesDetected,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// ObserveRun evaluates run and sends any resulting alerts.
func (a *Alerter) ObserveRun(ctx context.Context, run *model.RunSummary) {
	alerts := a.Evaluate(run)
	if len(alerts) == 0 {
		return
	}
	sent := a.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: run evaluated",
		zap.String("run_id", run.ID),
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// errorKinds counts failed checks by kind.
func errorKinds(run *model.RunSummary) map[string]int {
	kinds := make(map[string]int)
	for _, o := range run.Outcomes {
		if o.Failed() {
			kinds[string(o.ErrorKind)]++
		}
	}
	return kinds
}
