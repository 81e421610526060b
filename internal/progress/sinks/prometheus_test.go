package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/post-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow a run's events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Subject: "alice"},
		{RunID: runID, TS: now, Stage: progress.StageRunSubmitted, RemoteRunID: "R1"},
		{RunID: runID, TS: now.Add(5 * time.Second), Stage: progress.StageRunPoll, Attempt: 1, Status: "running"},
		{RunID: runID, TS: now.Add(10 * time.Second), Stage: progress.StageRunPoll, Attempt: 2, Status: "succeeded"},
		{RunID: runID, TS: now.Add(11 * time.Second), Stage: progress.StageRunDone, Attempt: 2, Dur: 11 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.polls.WithLabelValues("running")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.polls.WithLabelValues("succeeded")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "scraper_run_runtime_seconds"))
}

func TestPrometheusSinkTracksRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	first := progress.UUIDToBytes(uuid.New())
	second := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: now, Stage: progress.StageRunStart},
		{RunID: first, TS: now, Stage: progress.StageRunStart},
		{RunID: second, TS: now, Stage: progress.StageRunStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: now, Stage: progress.StageRunError, Outcome: "job_timed_out", Dur: time.Minute},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("job_timed_out")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
