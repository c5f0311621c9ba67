package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobcheck/internal/model"
)

type recordingRunner struct {
	mu       sync.Mutex
	triggers []model.Trigger
	err      error
}

func (r *recordingRunner) Run(_ context.Context, trigger model.Trigger) (*model.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	if r.err != nil {
		return nil, r.err
	}
	return &model.RunSummary{Trigger: trigger, Status: model.RunStatusComplete}, nil
}

func TestNewScheduler_Defaults(t *testing.T) {
	s, err := NewScheduler(&recordingRunner{}, "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.expr)
	assert.Equal(t, time.Local, s.loc)
}

func TestNewScheduler_InvalidExpression(t *testing.T) {
	_, err := NewScheduler(&recordingRunner{}, "every sunday", "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse schedule")
}

func TestNewScheduler_InvalidTimezone(t *testing.T) {
	_, err := NewScheduler(&recordingRunner{}, DefaultSchedule, "Mars/Olympus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load timezone")
}

func TestScheduler_NextIsSundayTwoAM(t *testing.T) {
	s, err := NewScheduler(&recordingRunner{}, DefaultSchedule, "UTC")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) }

	next := s.Next()
	assert.Equal(t, time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC), next.UTC())
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestScheduler_NextHonorsTimezone(t *testing.T) {
	s, err := NewScheduler(&recordingRunner{}, DefaultSchedule, "America/New_York")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) }

	next := s.Next()
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, "America/New_York", next.Location().String())
}

func TestScheduler_TriggerIsManual(t *testing.T) {
	r := &recordingRunner{}
	s, err := NewScheduler(r, DefaultSchedule, "UTC")
	require.NoError(t, err)

	run, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TriggerManual, run.Trigger)
	assert.Equal(t, []model.Trigger{model.TriggerManual}, r.triggers)
}

func TestScheduler_FireIsScheduled(t *testing.T) {
	r := &recordingRunner{}
	s, err := NewScheduler(r, DefaultSchedule, "UTC")
	require.NoError(t, err)

	s.fire()
	r.err = ErrRunInProgress
	s.fire()

	assert.Equal(t, []model.Trigger{model.TriggerScheduled, model.TriggerScheduled}, r.triggers)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s, err := NewScheduler(&recordingRunner{}, DefaultSchedule, "UTC")
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
	assert.Nil(t, s.cron)
}
