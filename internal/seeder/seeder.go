package seeder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/visitors"
)

const insertBatchSize = 500

// Seeder fills the embedded engine with sample page views so the rank and
// visit reports have something to show during development.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	ViewCount int
	Site      string
	Salt      string
	Days      int

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, site, salt string, viewCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		ViewCount: viewCount,
		Site:      site,
		Salt:      salt,
		Days:      60,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:       time.Now,
	}
}

// Run generates ViewCount views spread over the last Days days and stores
// them in batches.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	start := time.Now()
	s.Logger.Info("Starting page view seeding...", slog.String("site", s.Site), slog.Int("viewCount", s.ViewCount))

	views := s.generate()
	db := s.DBManager.GetConnection().WithContext(ctx)

	for i := 0; i < len(views); i += insertBatchSize {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		end := min(i+insertBatchSize, len(views))
		batch := views[i:end]
		err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.CreateInBatches(&batch, len(batch)).Error
		})
		if err != nil {
			return i, fmt.Errorf("failed to insert page views: %w", err)
		}
	}

	s.Logger.Info("Seeding completed successfully", slog.Int("views", len(views)), slog.Duration("elapsed", time.Since(start)))
	return len(views), nil
}

// generate builds browsing sessions from journey templates until ViewCount
// views exist. Each session reuses one visitor id.
func (s *Seeder) generate() []analytics.PageView {
	if s.ViewCount <= 0 {
		return nil
	}
	days := max(s.Days, 1)
	ipPool := s.ipPool(100)
	now := s.now().UTC()

	views := make([]analytics.PageView, 0, s.ViewCount)
	for len(views) < s.ViewCount {
		journey := journeyTemplates[s.rng.IntN(len(journeyTemplates))]
		visitor := visitors.BuildVisitorID(s.Salt, ipPool[s.rng.IntN(len(ipPool))], userAgents[s.rng.IntN(len(userAgents))])
		at := now.Add(-time.Duration(s.rng.IntN(days*24*60*60)) * time.Second)

		for _, path := range journey {
			if len(views) == s.ViewCount {
				break
			}
			views = append(views, analytics.PageView{
				Timestamp: at.Truncate(time.Second),
				Index1:    s.Site,
				Blob1:     path,
				Blob2:     visitor,
				Double1:   1,
			})
			at = at.Add(time.Duration(s.rng.IntN(110)+10) * time.Second)
			if at.After(now) {
				at = now
			}
		}
	}
	return views
}

func (s *Seeder) ipPool(size int) []string {
	pool := make([]string, size)
	for i := range pool {
		pool[i] = fmt.Sprintf("%d.%d.%d.%d", s.rng.IntN(223)+1, s.rng.IntN(256), s.rng.IntN(256), s.rng.IntN(254)+1)
	}
	return pool
}

var journeyTemplates = [][]string{
	{"/"},
	{"/", "/about/"},
	{"/", "/posts/"},
	{"/posts/hello-world/", "/"},
	{"/posts/go-concurrency/", "/posts/", "/posts/sqlite-wal/"},
	{"/", "/posts/", "/posts/cron-expressions/", "/about/"},
	{"/tags/go/", "/posts/go-concurrency/"},
	{"/posts/sqlite-wal/"},
	{"/", "/archives/", "/posts/hello-world/"},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}
