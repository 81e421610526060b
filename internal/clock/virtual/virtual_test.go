package virtual

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleepAdvancesTime(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := New(start)

	require.NoError(t, clk.Sleep(context.Background(), 5*time.Second))
	require.NoError(t, clk.Sleep(context.Background(), 5*time.Second))

	require.Equal(t, start.Add(10*time.Second), clk.Now())
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clk.Sleeps())
	require.Equal(t, 10*time.Second, clk.Slept())
}

func TestSleepCanceledContext(t *testing.T) {
	t.Parallel()

	clk := New(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, clk.Sleep(ctx, time.Second), context.Canceled)
	require.Empty(t, clk.Sleeps())
	require.Equal(t, time.Unix(0, 0), clk.Now())
}

func TestAdvanceDoesNotRecordSleep(t *testing.T) {
	t.Parallel()

	clk := New(time.Unix(0, 0))
	clk.Advance(time.Minute)
	require.Equal(t, time.Unix(60, 0), clk.Now())
	require.Empty(t, clk.Sleeps())
}
