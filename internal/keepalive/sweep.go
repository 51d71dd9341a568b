package keepalive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitepulse/internal/kv"
	"sitepulse/internal/notify"
	"sitepulse/internal/pkg/async"
)

// SweepSummary reports what one sweep did.
type SweepSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Scanned    int       `json:"scanned"`
	Due        int       `json:"due"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors,omitempty"`
}

// Sweeper scans every stored config and runs the keep-alive call for the
// ones that are due.
//
// Due records are executed on a bounded worker pool. One record's failure is
// recorded on that record and never stops the sweep. Cancelling the context
// stops new calls from starting; calls already running finish and are
// recorded.
type Sweeper struct {
	store        kv.Store
	keys         Keys
	schedule     Schedule
	pinger       Pinger
	publisher    notify.Publisher
	locks        *keyLocks
	pool         *async.Pool
	excerptLimit int
	now          func() time.Time
	logger       *slog.Logger
}

type dueRecord struct {
	key    string
	record ConfigRecord
}

// Run performs one sweep. It never returns an error; problems are logged and
// listed in the summary.
func (s *Sweeper) Run(ctx context.Context) SweepSummary {
	summary := SweepSummary{StartedAt: s.now()}
	defer func() {
		summary.FinishedAt = s.now()
		s.logger.Info("Keep-alive sweep finished",
			slog.Int("scanned", summary.Scanned),
			slog.Int("due", summary.Due),
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("failed", summary.Failed),
			slog.Int("skipped", summary.Skipped),
			slog.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
	}()

	keys, err := s.store.List(ctx, s.keys.AllConfigs())
	if err != nil {
		s.logger.Error("Failed to list keep-alive configs", slog.Any("error", err))
		summary.Errors = append(summary.Errors, err.Error())
		return summary
	}

	now := summary.StartedAt
	var due []dueRecord
	for _, key := range keys {
		summary.Scanned++

		raw, err := s.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, kv.ErrKeyNotFound) {
				s.logger.Error("Failed to load keep-alive config", slog.String("key", key), slog.Any("error", err))
				summary.Errors = append(summary.Errors, err.Error())
			}
			summary.Skipped++
			continue
		}

		rec, err := decodeConfig(key, raw)
		if err != nil {
			s.logger.Error("Skipping undecodable keep-alive config", slog.String("key", key), slog.Any("error", err))
			summary.Errors = append(summary.Errors, err.Error())
			summary.Skipped++
			continue
		}

		if !s.schedule.IsDue(rec, now) {
			summary.Skipped++
			continue
		}
		due = append(due, dueRecord{key: key, record: rec})
	}
	summary.Due = len(due)
	if len(due) == 0 {
		return summary
	}

	tasks := make([]async.Task, 0, len(due))
	for _, d := range due {
		d := d
		tasks = append(tasks, async.Task{
			Name: d.key,
			Execute: func(ctx context.Context) (interface{}, error) {
				return s.execute(ctx, d.key, d.record)
			},
		})
	}

	results := s.pool.Execute(ctx, tasks)
	for _, d := range due {
		res, ok := results[d.key]
		switch {
		case !ok:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: not started: %v", d.key, ctx.Err()))
		case res.Err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", d.key, res.Err))
		case res.Data.(bool):
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}
	return summary
}

// execute performs the call for one record and writes its bookkeeping back.
func (s *Sweeper) execute(ctx context.Context, key string, rec ConfigRecord) (bool, error) {
	result, err := s.ping(ctx, rec)
	executedAt := s.now()

	success := false
	var lastResult string
	switch {
	case err != nil:
		lastResult = "failed: " + excerpt(err.Error(), s.excerptLimit)
		s.logger.Warn("Keep-alive call failed",
			slog.String("key", key), slog.String("config_id", rec.ConfigID), slog.Any("error", err))
	case !result.OK:
		lastResult = fmt.Sprintf("failed (HTTP %d): %s", result.Status, excerpt(result.Body, s.excerptLimit))
		s.logger.Warn("Keep-alive call rejected",
			slog.String("key", key), slog.String("config_id", rec.ConfigID), slog.Int("status", result.Status))
	default:
		success = true
		lastResult = fmt.Sprintf("success (HTTP %d): %s", result.Status, excerpt(result.Body, s.excerptLimit))
	}

	count, werr := s.record(ctx, key, executedAt, lastResult)

	pubErr := s.publisher.Publish(context.WithoutCancel(ctx), notify.TopicKeepAliveExecuted, notify.KeepAliveExecuted{
		ConfigID:       rec.ConfigID,
		UserID:         rec.UserID,
		ConfigName:     rec.ConfigName,
		Success:        success,
		Result:         lastResult,
		ExecutionCount: count,
		ExecutedAt:     executedAt,
	})
	if pubErr != nil {
		s.logger.Warn("Failed to publish keep-alive outcome", slog.String("key", key), slog.Any("error", pubErr))
	}

	return success, werr
}

// ping converts a panicking pinger into an error so the record is still
// updated. A started call is detached from sweep cancellation and bounded
// only by the pinger's own timeout.
func (s *Sweeper) ping(ctx context.Context, rec ConfigRecord) (result PingResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("keep-alive call panicked: %v", r)
		}
	}()
	return s.pinger.Ping(context.WithoutCancel(ctx), rec)
}

// record re-reads the record under its key lock so concurrent toggles are
// kept, then writes the execution bookkeeping. A record deleted while the
// call was in flight stays deleted.
func (s *Sweeper) record(ctx context.Context, key string, executedAt time.Time, lastResult string) (int, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	// Bookkeeping is written even when the sweep was cancelled mid-call.
	ctx = context.WithoutCancel(ctx)

	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		s.logger.Info("Keep-alive config deleted during sweep, not recording", slog.String("key", key))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reload %s: %w", key, err)
	}

	current, err := decodeConfig(key, raw)
	if err != nil {
		return 0, err
	}

	current.LastExecuted = &executedAt
	current.LastResult = lastResult
	current.ExecutionCount++
	if current.IsActive {
		next := s.schedule.NextRun(current.ExecutionOffset, executedAt)
		current.NextExecution = &next
	} else {
		current.NextExecution = nil
	}

	value, err := encode(current)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, value); err != nil {
		return 0, err
	}
	return current.ExecutionCount, nil
}

func excerpt(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
