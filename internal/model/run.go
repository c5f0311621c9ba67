package model

import (
	"time"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerCLI       Trigger = "cli"
)

// RunStatus is the terminal state of a check run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// RunSummary aggregates the outcomes of one pass over the roster.
type RunSummary struct {
	ID                   string         `json:"id"`
	Trigger              Trigger        `json:"trigger"`
	Status               RunStatus      `json:"status"`
	StartedAt            time.Time      `json:"started_at"`
	FinishedAt           time.Time      `json:"finished_at"`
	DurationSeconds      float64        `json:"duration_seconds"`
	TotalChecked         int            `json:"total_checked"`
	ChangesDetected      int            `json:"changes_detected"`
	ErrorCount           int            `json:"error_count"`
	NotificationFailures int            `json:"notification_failures"`
	Error                string         `json:"error,omitempty"`
	Outcomes             []CheckOutcome `json:"outcomes"`
}

// Add appends an outcome and updates the counters.
func (s *RunSummary) Add(o CheckOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.TotalChecked++
	if o.Changed {
		s.ChangesDetected++
	}
	if o.Failed() {
		s.ErrorCount++
	}
	if o.NotifyError != "" {
		s.NotificationFailures++
	}
}

// Finish stamps the end time, duration and terminal status.
func (s *RunSummary) Finish(status RunStatus, now time.Time) {
	s.Status = status
	s.FinishedAt = now
	s.DurationSeconds = now.Sub(s.StartedAt).Seconds()
}

// ErrorRate returns the fraction of checked persons whose check failed.
func (s *RunSummary) ErrorRate() float64 {
	if s.TotalChecked == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.TotalChecked)
}
