package http

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/analytics"
	"sitepulse/internal/visitors"
)

// AnalyticsHandlers serves the page view reports. Both endpoints always
// answer 200; engine failures show up as zeros.
type AnalyticsHandlers struct {
	reporter    *analytics.Reporter
	visitorSalt string
}

func NewAnalyticsHandlers(reporter *analytics.Reporter, visitorSalt string) *AnalyticsHandlers {
	return &AnalyticsHandlers{reporter: reporter, visitorSalt: visitorSalt}
}

// RankAction handles GET /api/rank
func (h *AnalyticsHandlers) RankAction(ctx *cartridge.Context) error {
	return respondJSON(ctx, fiber.StatusOK, h.reporter.Rank(ctx.UserContext()))
}

// VisitAction handles GET /api/visit?page=. Without a page parameter the
// referring page is counted.
func (h *AnalyticsHandlers) VisitAction(ctx *cartridge.Context) error {
	page := strings.TrimSpace(ctx.Query("page"))
	if page == "" {
		page = refererPath(ctx.Get(fiber.HeaderReferer))
	}

	visitorID := visitors.BuildVisitorID(h.visitorSalt, clientIP(ctx.Ctx), ctx.Get(fiber.HeaderUserAgent))
	return respondJSON(ctx, fiber.StatusOK, h.reporter.Visit(ctx.UserContext(), page, visitorID))
}

func refererPath(referer string) string {
	if referer == "" {
		return "/"
	}
	u, err := url.Parse(referer)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
