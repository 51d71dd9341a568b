package timeframe_test

import (
	"testing"
	"time"

	"sitepulse/internal/timeframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestTruncateToBucketInTimezone(t *testing.T) {
	madrid := mustLoadLocation(t, "Europe/Madrid")
	// Sunday 2025-11-30 belongs to the week starting Monday Nov 24.
	at := time.Date(2025, 11, 30, 23, 30, 0, 0, madrid)

	testCases := []struct {
		name     string
		bucket   timeframe.TimeFrameBucketSize
		expected time.Time
	}{
		{"year", timeframe.TimeFrameBucketSizeYear, time.Date(2025, 1, 1, 0, 0, 0, 0, madrid)},
		{"month", timeframe.TimeFrameBucketSizeMonth, time.Date(2025, 11, 1, 0, 0, 0, 0, madrid)},
		{"week", timeframe.TimeFrameBucketSizeWeek, time.Date(2025, 11, 24, 0, 0, 0, 0, madrid)},
		{"day", timeframe.TimeFrameBucketSizeDay, time.Date(2025, 11, 30, 0, 0, 0, 0, madrid)},
		{"hour", timeframe.TimeFrameBucketSizeHour, time.Date(2025, 11, 30, 23, 0, 0, 0, madrid)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := timeframe.TruncateToBucketInTimezone(at, tc.bucket, madrid)
			assert.True(t, tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestPeriodsAtUsesReportingTimezone(t *testing.T) {
	// 2025-12-01 00:30 in Madrid is still 2025-11-30 in UTC.
	madrid := mustLoadLocation(t, "Europe/Madrid")
	now := time.Date(2025, 11, 30, 23, 30, 0, 0, time.UTC)

	utc := timeframe.PeriodsAt(now, time.UTC)
	assert.Equal(t, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), utc.Day)
	assert.Equal(t, time.Date(2025, 11, 24, 0, 0, 0, 0, time.UTC), utc.Week)
	assert.Equal(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), utc.Month)

	local := timeframe.PeriodsAt(now, madrid)
	assert.True(t, time.Date(2025, 12, 1, 0, 0, 0, 0, madrid).Equal(local.Day))
	assert.True(t, time.Date(2025, 12, 1, 0, 0, 0, 0, madrid).Equal(local.Week), "Dec 1st 2025 is a Monday")
	assert.True(t, time.Date(2025, 12, 1, 0, 0, 0, 0, madrid).Equal(local.Month))
	assert.Equal(t, "2025-11-30T23:00:00Z", local.Day.UTC().Format(time.RFC3339))
}

func TestPeriodsAtDefaultsToUTC(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	p := timeframe.PeriodsAt(now, nil)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), p.Week)
}

func TestFixedTimeProvider(t *testing.T) {
	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	provider := &timeframe.FixedTimeProvider{FixedTime: fixed}
	tokyo := mustLoadLocation(t, "Asia/Tokyo")

	got := provider.Now(tokyo)
	assert.Equal(t, 21, got.Hour())
	assert.True(t, fixed.Equal(got))
}
