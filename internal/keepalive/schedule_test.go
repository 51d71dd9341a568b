package keepalive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() Schedule {
	return Schedule{
		Cycle:      300 * time.Second,
		HalfWidth:  90 * time.Second,
		Policy:     PolicyWindowElapsed,
		MinElapsed: 210 * time.Second,
	}
}

func TestScheduleOffsetRange(t *testing.T) {
	s := testSchedule()
	for i := 0; i < 1000; i++ {
		off := s.NewOffset()
		require.GreaterOrEqual(t, off, 0)
		require.Less(t, off, 300)
	}
}

func TestSchedulePositionIsPeriodic(t *testing.T) {
	s := testSchedule()
	base := time.Unix(1_750_000_123, 0)
	assert.Equal(t, s.Position(base), s.Position(base.Add(300*time.Second)))
	assert.Equal(t, int(1_750_000_123%300), s.Position(base))
}

func TestScheduleDistance(t *testing.T) {
	s := testSchedule()
	tests := []struct {
		a, b, want int
	}{
		{0, 0, 0},
		{10, 20, 10},
		{290, 10, 20},
		{0, 150, 150},
		{299, 0, 1},
		{-1, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Distance(tt.a, tt.b), "distance(%d, %d)", tt.a, tt.b)
		assert.Equal(t, tt.want, s.Distance(tt.b, tt.a), "distance is symmetric")
	}

	for a := 0; a < 300; a += 7 {
		for b := 0; b < 300; b += 11 {
			assert.LessOrEqual(t, s.Distance(a, b), 150)
		}
	}
}

func TestScheduleInWindowWrapsAroundCycle(t *testing.T) {
	s := testSchedule()
	cycleStart := time.Unix(1_750_000_200, 0) // position 0

	assert.True(t, s.InWindow(10, cycleStart))
	assert.True(t, s.InWindow(280, cycleStart), "window wraps across the cycle boundary")
	assert.True(t, s.InWindow(90, cycleStart), "edge of the window is inclusive")
	assert.False(t, s.InWindow(91, cycleStart))
	assert.False(t, s.InWindow(150, cycleStart))
}

func TestScheduleIsDuePolicies(t *testing.T) {
	now := time.Unix(1_750_000_200, 0)
	recent := now.Add(-60 * time.Second)
	old := now.Add(-250 * time.Second)

	active := ConfigRecord{IsActive: true, ExecutionOffset: 0}

	window := testSchedule()
	window.Policy = PolicyWindow
	elapsed := testSchedule()

	neverRun := active
	ranRecently := active
	ranRecently.LastExecuted = &recent
	ranLongAgo := active
	ranLongAgo.LastExecuted = &old
	inactive := active
	inactive.IsActive = false
	outside := active
	outside.ExecutionOffset = 150

	assert.True(t, window.IsDue(neverRun, now))
	assert.True(t, window.IsDue(ranRecently, now), "window policy ignores elapsed time")
	assert.True(t, elapsed.IsDue(neverRun, now))
	assert.False(t, elapsed.IsDue(ranRecently, now))
	assert.True(t, elapsed.IsDue(ranLongAgo, now))

	assert.False(t, window.IsDue(inactive, now))
	assert.False(t, elapsed.IsDue(outside, now))
}

func TestScheduleElapsedPolicyBlocksTrailingEdge(t *testing.T) {
	s := testSchedule()
	cycleStart := time.Unix(1_750_000_200, 0)
	leading := cycleStart.Add(60 * time.Second)   // offset 150 - 90
	trailing := cycleStart.Add(240 * time.Second) // offset 150 + 90

	rec := ConfigRecord{IsActive: true, ExecutionOffset: 150, LastExecuted: &leading}
	require.True(t, s.InWindow(rec.ExecutionOffset, trailing))
	assert.False(t, s.IsDue(rec, trailing), "a second run in the same window")
	assert.True(t, s.IsDue(rec, leading.Add(s.Cycle)), "the next cycle's leading edge")
}

func TestScheduleNextRun(t *testing.T) {
	s := testSchedule()
	now := time.Unix(1_750_000_200, 0).Add(500 * time.Millisecond) // position 0

	next := s.NextRun(42, now)
	assert.Equal(t, time.Unix(1_750_000_242, 0), next)
	assert.Equal(t, 42, s.Position(next))

	same := s.NextRun(0, time.Unix(1_750_000_200, 0))
	assert.Equal(t, time.Unix(1_750_000_500, 0), same, "next run is strictly after now")

	for _, offset := range []int{0, 1, 150, 299} {
		got := s.NextRun(offset, now)
		assert.True(t, got.After(now))
		assert.LessOrEqual(t, got.Sub(now), 300*time.Second)
		assert.Equal(t, offset, s.Position(got))
	}
}

func TestScheduleDescribe(t *testing.T) {
	assert.Equal(t, "runs every 5m0s, 1m30s into each cycle (window ±1m30s)", testSchedule().Describe(90))
}

func TestCheckSweepInterval(t *testing.T) {
	s := testSchedule()
	assert.NoError(t, s.CheckSweepInterval(time.Minute))
	assert.Error(t, s.CheckSweepInterval(3*time.Minute))
	assert.Error(t, s.CheckSweepInterval(10*time.Minute))
}
