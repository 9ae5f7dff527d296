package service

import (
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:30")
	require.NoError(t, err)
	require.Equal(t, "0 30 7 * * *", spec)

	for _, bad := range []string{"7", "24:00", "12:60", "aa:bb"} {
		_, err := buildDailySpec(bad)
		require.Error(t, err, bad)
	}
}

func TestBuildIntervalSpec(t *testing.T) {
	spec, err := buildIntervalSpec(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "@every 5s", spec)

	spec, err = buildIntervalSpec(300 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "@every 1s", spec)

	_, err = buildIntervalSpec(0)
	require.Error(t, err)
}

func TestSchedulerRunsIntervalJobs(t *testing.T) {
	s := NewSchedulerService(time.UTC, log.New(io.Discard, "", 0))
	var runs atomic.Int32
	_, err := s.ScheduleInterval(time.Second, func() { runs.Add(1) })
	require.NoError(t, err)
	_, err = s.ScheduleInterval(time.Second, func() { panic("boom") })
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}
