package stresstest

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(startedAt time.Time, targets ...string) *Run {
	return &Run{
		UUID:        "run-" + startedAt.Format("150405.000000000"),
		Targets:     targets,
		Workers:     40,
		IntervalSec: 5,
		TimeoutSec:  5,
		StartedAt:   startedAt,
		Status:      StatusRunning,
	}
}

func TestManager_RunRoundTrip(t *testing.T) {
	m := createTestManager(t)
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)

	run := newTestRun(started, "http://localhost:5000/api/robots", "http://localhost:5000/api/alive")
	require.NoError(t, m.CreateRun(run))
	require.NotZero(t, run.ID)

	got, err := m.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.UUID, got.UUID)
	assert.Equal(t, run.Targets, got.Targets)
	assert.True(t, got.IsRunning())
	assert.Nil(t, got.CompletedAt)
	assert.Zero(t, got.Elapsed())

	completed := started.Add(30 * time.Second)
	run.CompletedAt = &completed
	run.Status = StatusCompleted
	run.TotalRequests = 1200
	run.TotalErrors = 600
	run.NonOKResponses = 590
	run.TransportFailures = 10
	run.AvgDurationMs = 1.5
	run.MinDurationMs = 1
	run.MaxDurationMs = 40
	require.NoError(t, m.UpdateRun(run))

	got, err = m.GetRun(run.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRunning())
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int64(1200), got.TotalRequests)
	assert.Equal(t, int64(600), got.TotalErrors)
	assert.Equal(t, int64(590), got.NonOKResponses)
	assert.Equal(t, int64(10), got.TransportFailures)
	assert.InDelta(t, 1.5, got.AvgDurationMs, 0.0001)
	assert.Equal(t, int64(40), got.MaxDurationMs)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 30*time.Second, got.Elapsed())
}

func TestManager_GetRunMissing(t *testing.T) {
	m := createTestManager(t)
	_, err := m.GetRun(42)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestManager_ListRunsNewestFirst(t *testing.T) {
	m := createTestManager(t)
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.CreateRun(newTestRun(base.Add(time.Duration(i)*time.Minute), "http://localhost/")))
	}

	runs, err := m.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	assert.True(t, runs[1].StartedAt.After(runs[2].StartedAt))

	limited, err := m.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, runs[0].ID, limited[0].ID)
}

func TestManager_IntervalsAndDelete(t *testing.T) {
	m := createTestManager(t)
	base := time.Now().UTC()

	run := newTestRun(base, "http://localhost/")
	require.NoError(t, m.CreateRun(run))

	totals := []int64{0, 37, 102}
	prev := int64(0)
	for i, total := range totals {
		iv := &Interval{
			RunID:   run.ID,
			TakenAt: base.Add(time.Duration(i+1) * 5 * time.Second),
			Total:   total,
			Delta:   total - prev,
		}
		require.NoError(t, m.SaveInterval(iv))
		assert.NotZero(t, iv.ID)
		prev = total
	}

	intervals, err := m.GetIntervals(run.ID)
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, []int64{0, 37, 65}, []int64{intervals[0].Delta, intervals[1].Delta, intervals[2].Delta})

	require.NoError(t, m.DeleteRun(run.ID))

	_, err = m.GetRun(run.ID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	intervals, err = m.GetIntervals(run.ID)
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestNewManager_FileDatabase(t *testing.T) {
	path := t.TempDir() + "/history.db"

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.CreateRun(newTestRun(time.Now().UTC(), "http://localhost/")))
	require.NoError(t, m.Close())

	// Reopening keeps the data and does not reapply migrations
	m, err = NewManager(path)
	require.NoError(t, err)
	defer m.Close()

	runs, err := m.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
