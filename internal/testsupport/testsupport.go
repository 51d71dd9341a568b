package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/database"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Shared-cache connections contend on table locks; one connection keeps
	// concurrent readers and writers serialized.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanTables clears the given tables.
func CleanTables(db *gorm.DB, tables ...string) {
	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// TestConfig returns a validated-shape configuration for tests without
// touching the process-wide config.
func TestConfig() *config.Config {
	return &config.Config{
		AppName:                 "sitepulse",
		Environment:             config.Test,
		DatabaseType:            config.SQLiteDatabase,
		PublicAssetsUrlPrefix:   "/",
		AnalyticsMode:           config.AnalyticsLocal,
		AnalyticsDataset:        "blog_pageviews",
		AnalyticsSite:           "blog",
		AnalyticsTimeoutSeconds: 5,
		RankPageLimit:           200,
		ReportingTimezone:       "UTC",
		VisitorSalt:             "test-salt",
		PageViewsRetentionDays:  400,
		KeepAliveUserAgent:      "sitepulse-test",
		KeepAliveLoginMarkers:   []string{"not logged in"},
		KeepAliveTimeoutSeconds: 2,
		KeepAliveExcerptLimit:   100,
		CycleSeconds:            300,
		WindowHalfSeconds:       90,
		DuePolicy:               config.DuePolicyWindowElapsed,
		MinElapsedSeconds:       210,
		SweepSchedule:           "@every 1m",
		SweepWorkers:            2,
		ConfigKeyPrefix:         "hangup",
		AuthKeyPrefix:           "hangup_auth",
		RequireUserToken:        true,
		TokenCacheSeconds:       60,
		NATSSubjectPrefix:       "sitepulse",
	}
}

// CreatePageViews inserts count views of path recorded at the given instant.
func CreatePageViews(t *testing.T, db *gorm.DB, site, path, visitor string, at time.Time, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		pv := analytics.PageView{
			Timestamp: at.UTC().Truncate(time.Second),
			Index1:    site,
			Blob1:     path,
			Blob2:     visitor,
			Double1:   1,
		}
		require.NoError(t, db.Create(&pv).Error)
	}
}

// NewTestApp builds a cartridge server over db with the given routes mounted.
func NewTestApp(t *testing.T, db *gorm.DB, cfg *config.Config, mount func(*cartridge.Server)) *fiber.App {
	t.Helper()

	serverCfg := cartridge.DefaultServerConfig()
	serverCfg.Config = cfg
	serverCfg.Logger = GetLogger()
	serverCfg.DBManager = NewTestDBManager(db)
	serverCfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(serverCfg)
	require.NoError(t, err)

	mount(srv)
	return srv.App()
}
