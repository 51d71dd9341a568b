package analytics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"sitepulse/internal/pkg/async"
	"sitepulse/internal/timeframe"

	"github.com/tidwall/gjson"
)

const (
	totalViewsSQL   = `SELECT SUM(double1) AS views FROM {{table}} WHERE index1 = ?`
	periodViewsSQL  = `SELECT SUM(double1) AS views FROM {{table}} WHERE index1 = ? AND timestamp >= ?`
	pageViewsSQL    = `SELECT SUM(double1) AS views FROM {{table}} WHERE index1 = ? AND blob1 = ?`
	uniqueVisitsSQL = `SELECT COUNT(DISTINCT blob2) AS visitors FROM {{table}} WHERE index1 = ?`
	topPagesSQL     = `SELECT blob1 AS page, SUM(double1) AS views FROM {{table}} WHERE index1 = ? GROUP BY blob1 ORDER BY views DESC, page ASC LIMIT ?`
)

// Summary holds view totals for the site.
type Summary struct {
	Total int64 `json:"total"`
	Month int64 `json:"month"`
	Week  int64 `json:"week"`
	Day   int64 `json:"day"`
}

type PageCount struct {
	Page  string `json:"page"`
	Views int64  `json:"views"`
}

type RankReport struct {
	Summary Summary     `json:"summary"`
	Pages   []PageCount `json:"pages"`
}

type VisitReport struct {
	PagePV int64 `json:"page_pv"`
	SitePV int64 `json:"site_pv"`
	SiteUV int64 `json:"site_uv"`
}

type ReporterConfig struct {
	Site      string
	PageLimit int
	Location  *time.Location
	Workers   int
}

// Reporter answers the rank and visit reports. Every aggregate is queried
// independently; a failed query is logged and reported as zero or empty.
type Reporter struct {
	gateway *Gateway
	cfg     ReporterConfig
	pool    *async.Pool
	clock   timeframe.TimeProvider
	logger  *slog.Logger
}

func NewReporter(gateway *Gateway, cfg ReporterConfig, logger *slog.Logger) *Reporter {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 200
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Reporter{
		gateway: gateway,
		cfg:     cfg,
		pool:    async.NewPool(cfg.Workers),
		clock:   &timeframe.DefaultTimeProvider{},
		logger:  logger,
	}
}

// SetTimeProvider replaces the clock used to compute reporting periods.
func (r *Reporter) SetTimeProvider(tp timeframe.TimeProvider) {
	r.clock = tp
}

// Rank returns the site summary and the most viewed pages.
func (r *Reporter) Rank(ctx context.Context) RankReport {
	periods := timeframe.PeriodsAt(r.clock.Now(r.cfg.Location), r.cfg.Location)
	site := r.cfg.Site

	tasks := []async.Task{
		r.countTask("total", NewStatement(totalViewsSQL, site), "views"),
		r.countTask("month", NewStatement(periodViewsSQL, site, periods.Month), "views"),
		r.countTask("week", NewStatement(periodViewsSQL, site, periods.Week), "views"),
		r.countTask("day", NewStatement(periodViewsSQL, site, periods.Day), "views"),
		{
			Name: "pages",
			Execute: func(ctx context.Context) (interface{}, error) {
				// Over-fetch so rows stored under unnormalized paths can fold
				// into their canonical page before truncation.
				rows, err := r.gateway.Query(ctx, NewStatement(topPagesSQL, site, 2*r.cfg.PageLimit))
				if err != nil {
					return nil, err
				}
				return mergePages(rows, r.cfg.PageLimit), nil
			},
		},
	}

	results := r.pool.Execute(ctx, tasks)

	report := RankReport{
		Summary: Summary{
			Total: r.countResult(results, "total"),
			Month: r.countResult(results, "month"),
			Week:  r.countResult(results, "week"),
			Day:   r.countResult(results, "day"),
		},
		Pages: []PageCount{},
	}
	if res, ok := results["pages"]; ok && res.Err == nil {
		report.Pages = res.Data.([]PageCount)
	} else {
		r.logFailure("pages", res.Err)
	}
	return report
}

// Visit records one view of path and returns the running totals. The
// just-recorded view may not be reflected yet when the engine is eventually
// consistent.
func (r *Reporter) Visit(ctx context.Context, path, visitorID string) VisitReport {
	path = NormalizePath(path)
	site := r.cfg.Site

	err := r.gateway.Record(ctx, View{
		Site:    site,
		Path:    path,
		Visitor: visitorID,
		Weight:  1,
		At:      r.clock.Now(time.UTC),
	})
	if err != nil {
		r.logger.Warn("Failed to record page view", slog.String("page", path), slog.Any("error", err))
	}

	results := r.pool.Execute(ctx, []async.Task{
		r.countTask("page_pv", NewStatement(pageViewsSQL, site, path), "views"),
		r.countTask("site_pv", NewStatement(totalViewsSQL, site), "views"),
		r.countTask("site_uv", NewStatement(uniqueVisitsSQL, site), "visitors"),
	})

	return VisitReport{
		PagePV: r.countResult(results, "page_pv"),
		SitePV: r.countResult(results, "site_pv"),
		SiteUV: r.countResult(results, "site_uv"),
	}
}

func (r *Reporter) countTask(name string, stmt Statement, field string) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (interface{}, error) {
			rows, err := r.gateway.Query(ctx, stmt)
			if err != nil {
				return nil, err
			}
			return FirstInt(rows, field), nil
		},
	}
}

func (r *Reporter) countResult(results map[string]async.Result, name string) int64 {
	res, ok := results[name]
	if !ok || res.Err != nil {
		r.logFailure(name, res.Err)
		return 0
	}
	return res.Data.(int64)
}

func (r *Reporter) logFailure(name string, err error) {
	if err == nil {
		err = context.Canceled
	}
	r.logger.Error("Analytics query failed, reporting fallback",
		slog.String("query", name),
		slog.Any("error", err))
}

// mergePages folds rows recorded under unnormalized paths into their
// canonical page and orders by views, then path.
func mergePages(rows []gjson.Result, limit int) []PageCount {
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		page := NormalizePath(row.Get("page").String())
		totals[page] += Number(row.Get("views"))
	}

	pages := make([]PageCount, 0, len(totals))
	for page, views := range totals {
		pages = append(pages, PageCount{Page: page, Views: int64(math.Round(views))})
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Views != pages[j].Views {
			return pages[i].Views > pages[j].Views
		}
		return pages[i].Page < pages[j].Page
	})

	if len(pages) > limit {
		pages = pages[:limit]
	}
	return pages
}
