package timeframe

import (
	"time"
)

type TimeFrameBucketSize string

const (
	TimeFrameBucketSizeYear  TimeFrameBucketSize = "year"
	TimeFrameBucketSizeMonth TimeFrameBucketSize = "month"
	TimeFrameBucketSizeWeek  TimeFrameBucketSize = "week"
	TimeFrameBucketSizeDay   TimeFrameBucketSize = "day"
	TimeFrameBucketSizeHour  TimeFrameBucketSize = "hour"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FixedTimeProvider always reports the same instant.
type FixedTimeProvider struct {
	FixedTime time.Time
}

func (p *FixedTimeProvider) Now(loc *time.Location) time.Time {
	return p.FixedTime.In(loc)
}

// Periods holds the start of each reporting period containing an instant.
type Periods struct {
	Day   time.Time
	Week  time.Time
	Month time.Time
}

// PeriodsAt returns calendar day, ISO week (Monday start) and month
// boundaries for now in loc.
func PeriodsAt(now time.Time, loc *time.Location) Periods {
	if loc == nil {
		loc = time.UTC
	}
	return Periods{
		Day:   TruncateToBucketInTimezone(now, TimeFrameBucketSizeDay, loc),
		Week:  TruncateToBucketInTimezone(now, TimeFrameBucketSizeWeek, loc),
		Month: TruncateToBucketInTimezone(now, TimeFrameBucketSizeMonth, loc),
	}
}

// TruncateToBucketInTimezone truncates a time to the appropriate bucket boundary in the given timezone
func TruncateToBucketInTimezone(t time.Time, bucketSize TimeFrameBucketSize, loc *time.Location) time.Time {
	// Ensure we're working in the correct timezone
	localTime := t.In(loc)
	year, month, day := localTime.Year(), localTime.Month(), localTime.Day()

	switch bucketSize {
	case TimeFrameBucketSizeYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeWeek:
		weekday := int(localTime.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		daysToSubtract := weekday - 1
		return time.Date(year, month, day-daysToSubtract, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeHour:
		return time.Date(year, month, day, localTime.Hour(), 0, 0, 0, loc)
	default:
		return localTime
	}
}
