package keepalive

import (
	"fmt"
	"math/rand/v2"
	"time"

	"sitepulse/internal/config"
)

// Policy selects the due predicate used by the sweep.
type Policy string

const (
	// PolicyWindow fires on every sweep that lands inside the window.
	PolicyWindow Policy = config.DuePolicyWindow
	// PolicyWindowElapsed also requires MinElapsed since the last attempt.
	PolicyWindowElapsed Policy = config.DuePolicyWindowElapsed
)

// Schedule spreads configs over a repeating cycle. Each config owns an
// offset within the cycle and is due while the current cycle position is
// within HalfWidth of it.
type Schedule struct {
	Cycle      time.Duration
	HalfWidth  time.Duration
	Policy     Policy
	MinElapsed time.Duration
}

// ScheduleFromConfig builds the schedule from validated configuration.
func ScheduleFromConfig(cfg *config.Config) Schedule {
	return Schedule{
		Cycle:      time.Duration(cfg.CycleSeconds) * time.Second,
		HalfWidth:  time.Duration(cfg.WindowHalfSeconds) * time.Second,
		Policy:     Policy(cfg.DuePolicy),
		MinElapsed: time.Duration(cfg.MinElapsedSeconds) * time.Second,
	}
}

func (s Schedule) cycleSeconds() int {
	w := int(s.Cycle / time.Second)
	if w < 1 {
		return 1
	}
	return w
}

func (s Schedule) mod(v int) int {
	w := s.cycleSeconds()
	return ((v % w) + w) % w
}

// NewOffset draws an offset uniformly from [0, W). Safe for concurrent use.
func (s Schedule) NewOffset() int {
	return rand.IntN(s.cycleSeconds())
}

// Position returns the cycle position of now in [0, W).
func (s Schedule) Position(now time.Time) int {
	return s.mod(int(now.Unix() % int64(s.cycleSeconds())))
}

// Distance is the modular distance between two cycle positions; it never
// exceeds W/2.
func (s Schedule) Distance(a, b int) int {
	d := s.mod(a) - s.mod(b)
	if d < 0 {
		d = -d
	}
	if alt := s.cycleSeconds() - d; alt < d {
		return alt
	}
	return d
}

// InWindow reports whether now falls inside the window centred on offset.
func (s Schedule) InWindow(offset int, now time.Time) bool {
	return s.Distance(s.Position(now), offset) <= int(s.HalfWidth/time.Second)
}

// IsDue applies the configured policy. A record that has never run always
// passes the elapsed check.
func (s Schedule) IsDue(rec ConfigRecord, now time.Time) bool {
	if !rec.IsActive || !s.InWindow(rec.ExecutionOffset, now) {
		return false
	}
	if s.Policy == PolicyWindowElapsed && rec.LastExecuted != nil {
		return now.Sub(*rec.LastExecuted) >= s.MinElapsed
	}
	return true
}

// NextRun returns the first instant after now whose cycle position equals
// offset.
func (s Schedule) NextRun(offset int, now time.Time) time.Time {
	base := now.Truncate(time.Second)
	delta := s.mod(offset - s.Position(base))
	if delta == 0 {
		delta = s.cycleSeconds()
	}
	return base.Add(time.Duration(delta) * time.Second)
}

// Describe renders the schedule of one offset for humans.
func (s Schedule) Describe(offset int) string {
	return fmt.Sprintf("runs every %s, %s into each cycle (window ±%s)",
		s.Cycle, time.Duration(s.mod(offset))*time.Second, s.HalfWidth)
}

// CheckSweepInterval reports an error when sweeps at the given interval can
// skip over a whole window.
func (s Schedule) CheckSweepInterval(interval time.Duration) error {
	if width := 2 * s.HalfWidth; interval >= width {
		return fmt.Errorf("sweep interval %s is not shorter than the execution window %s; some configs may be skipped", interval, width)
	}
	return nil
}
