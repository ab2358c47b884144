package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

type panickingJob struct{}

func (panickingJob) Name() string        { return "panics" }
func (panickingJob) Description() string { return "always panics" }

func (panickingJob) Run(ctx context.Context) error {
	panic("boom")
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

func TestRegisterRejectsNilJob(t *testing.T) {
	s := NewScheduler(nil)

	err := s.Register(nil, NewIntervalSchedule(time.Minute))
	assert.ErrorIs(t, err, ErrNilJob)

	err = s.Register(&countingJob{name: "a"}, nil)
	assert.ErrorIs(t, err, ErrNilSchedule)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)))
	err := s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestStartTwiceFails(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
}

func TestStopWithoutStartFails(t *testing.T) {
	s := NewScheduler(nil)
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

// ─────────────────────────────────────────────────────────────────────────────
// Execution
// ─────────────────────────────────────────────────────────────────────────────

func TestRunNowExecutesJob(t *testing.T) {
	s := NewScheduler(nil)
	job := &countingJob{name: "reconcile"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "reconcile")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "reconcile", result.JobName)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, int64(1), job.runs.Load())

	last, ok := s.LastRun("reconcile")
	require.True(t, ok)
	assert.Equal(t, result.RunID, last.RunID)
}

func TestRunNowReportsJobError(t *testing.T) {
	s := NewScheduler(nil)
	jobErr := errors.New("directory unavailable")
	job := &countingJob{name: "reconcile", err: jobErr}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "reconcile")

	assert.ErrorIs(t, err, jobErr)
	assert.False(t, result.Success)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := NewScheduler(nil)

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduledJobRunsOnInterval(t *testing.T) {
	s := NewScheduler(nil)
	job := &countingJob{name: "fast"}
	// The loop ticks once a second; a sub-second interval makes the job due
	// on the first tick.
	require.NoError(t, s.Register(job, NewIntervalSchedule(100*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPanickingJobIsContained(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Register(panickingJob{}, NewIntervalSchedule(100*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		last, ok := s.LastRun("panics")
		return ok && !last.Success
	}, 5*time.Second, 50*time.Millisecond)

	last, _ := s.LastRun("panics")
	require.Error(t, last.Error)
	assert.Contains(t, last.Error.Error(), "panicked")
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedules
// ─────────────────────────────────────────────────────────────────────────────

func TestIntervalScheduleNext(t *testing.T) {
	sched := NewIntervalSchedule(5 * time.Minute)

	now := time.Now()
	assert.Equal(t, now.Add(5*time.Minute), sched.Next(now))
	assert.Equal(t, "@every 5m0s", sched.String())
}
