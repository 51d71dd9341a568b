package internal

import (
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"sitepulse/internal/config"
	"sitepulse/internal/http"
)

// apiCORSConfig lets the blog and any other origin call the JSON API.
var apiCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// MountAppRoutes builds the services from the server's database and mounts
// every route. Background jobs are not started.
func MountAppRoutes(srv *cartridge.Server) {
	services, err := NewServices(config.GetConfig(), srv.GetDBManager().GetConnection(), srv.GetLogger())
	if err != nil {
		srv.GetLogger().Error("Failed to initialize services", slog.Any("error", err))
		panic(err)
	}
	services.MountRoutes(srv)
}

// MountRoutes mounts all application routes using cartridge's route API
func (s *Services) MountRoutes(srv *cartridge.Server) {
	cfg := s.Config

	// Rate limiting only applies in production; it would interfere with tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Page view reporting is hit on every blog page load
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	configRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(60),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Token issuance and manual sweeps are expensive or sensitive
	strictRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// API callers include scripts and the CLI, so Sec-Fetch-Site is not required.
	routeConfig := func(limiter fiber.Handler) *cartridge.RouteConfig {
		return &cartridge.RouteConfig{
			EnableCORS:         true,
			CORSConfig:         apiCORSConfig,
			CustomMiddleware:   []fiber.Handler{limiter},
			EnableSecFetchSite: cartridge.Bool(false),
		}
	}
	publicConfig := routeConfig(publicRateLimiter)
	configAPIConfig := routeConfig(configRateLimiter)
	strictConfig := routeConfig(strictRateLimiter)

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	analyticsHandlers := http.NewAnalyticsHandlers(s.Reporter, cfg.VisitorSalt)
	keepAliveHandlers := http.NewKeepAliveHandlers(s.KeepAlive, s.Scheduler, !cfg.IsProduction())

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === ANALYTICS ===
	srv.Get("/api/rank", analyticsHandlers.RankAction, publicConfig)
	srv.Options("/api/rank", preflight, publicConfig)
	srv.Get("/api/visit", analyticsHandlers.VisitAction, publicConfig)
	srv.Options("/api/visit", preflight, publicConfig)

	// === KEEP-ALIVE CONFIGS ===
	srv.Post("/api/configs", keepAliveHandlers.ConfigCreateAction, configAPIConfig)
	srv.Get("/api/configs", keepAliveHandlers.ConfigListAction, configAPIConfig)
	srv.Options("/api/configs", preflight, configAPIConfig)
	srv.Post("/api/configs/:id/toggle", keepAliveHandlers.ConfigToggleAction, configAPIConfig)
	srv.Options("/api/configs/:id/toggle", preflight, configAPIConfig)
	srv.Delete("/api/configs/:id", keepAliveHandlers.ConfigDeleteAction, configAPIConfig)
	srv.Options("/api/configs/:id", preflight, configAPIConfig)

	srv.Post("/api/execute", keepAliveHandlers.ExecuteAction, strictConfig)
	srv.Options("/api/execute", preflight, strictConfig)

	if cfg.RequireUserToken {
		srv.Post("/api/auth/token", keepAliveHandlers.TokenIssueAction, strictConfig)
		srv.Options("/api/auth/token", preflight, strictConfig)
	}
}
