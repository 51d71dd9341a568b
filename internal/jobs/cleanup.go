package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes analytics rows older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob handles retention of locally stored page views
type CleanupJob struct {
	pruner        Pruner
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

func NewCleanupJob(pruner Pruner, retentionDays int, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger,
	}
}

// Run removes page views older than the retention period. A non-positive
// retention keeps everything.
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		j.logger.Debug("Page view retention disabled, skipping cleanup")
		return nil
	}

	cutoff := j.now().AddDate(0, 0, -j.retentionDays)
	j.logger.Info("Starting cleanup of old page views",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	removed, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if removed == 0 {
		j.logger.Debug("No old page views to clean up")
		return nil
	}

	j.logger.Info("Cleaned up old page views",
		slog.Int64("deleted_count", removed),
		slog.Int("retention_days", j.retentionDays))
	return nil
}
