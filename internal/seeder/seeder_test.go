package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
	"sitepulse/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanTables(db, analytics.LocalTable)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewSeeder(dbManager, logger, "blog.example.com", "salt", 1203)
	s.now = func() time.Time { return now }

	inserted, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1203, inserted)

	var views []analytics.PageView
	require.NoError(t, db.Find(&views).Error)
	require.Len(t, views, 1203)

	oldest := now.AddDate(0, 0, -s.Days)
	for _, v := range views {
		assert.Equal(t, "blog.example.com", v.Index1)
		assert.NotEmpty(t, v.Blob1)
		assert.Len(t, v.Blob2, 64)
		assert.False(t, v.Timestamp.After(now), "view recorded in the future: %s", v.Timestamp)
		assert.False(t, v.Timestamp.Before(oldest), "view older than the seeding window: %s", v.Timestamp)
	}
}

func TestSeederZeroViews(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	inserted, err := NewSeeder(dbManager, logger, "blog.example.com", "", 0).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestSeederCancelled(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inserted, err := NewSeeder(dbManager, logger, "blog.example.com", "", 10).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inserted)
}
