package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
)

func findRoute(routes []fiber.Route, method, path string) *fiber.Route {
	for idx := range routes {
		if routes[idx].Method == method && routes[idx].Path == path {
			return &routes[idx]
		}
	}
	return nil
}

func TestAPIRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	for _, want := range []struct{ method, path string }{
		{fiber.MethodPost, "/api/configs"},
		{fiber.MethodGet, "/api/visit"},
		{fiber.MethodPost, "/api/execute"},
	} {
		route := findRoute(routes, want.method, want.path)
		require.NotNil(t, route, "expected %s %s to be registered", want.method, want.path)

		// The limiter sits behind a wrapper that only applies it in production.
		hasRateLimiter := false
		var handlerNames []string
		for _, handler := range route.Handlers {
			name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
			handlerNames = append(handlerNames, name)
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		require.Truef(t, hasRateLimiter, "expected rate limiter on %s %s, handlers: %v", want.method, want.path, handlerNames)
	}
}

func TestAPIRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	for _, want := range []struct{ method, path string }{
		{fiber.MethodGet, "/_health"},
		{fiber.MethodGet, "/api/rank"},
		{fiber.MethodOptions, "/api/rank"},
		{fiber.MethodGet, "/api/visit"},
		{fiber.MethodGet, "/api/configs"},
		{fiber.MethodOptions, "/api/configs"},
		{fiber.MethodPost, "/api/configs/:id/toggle"},
		{fiber.MethodOptions, "/api/configs/:id/toggle"},
		{fiber.MethodDelete, "/api/configs/:id"},
		{fiber.MethodOptions, "/api/configs/:id"},
		{fiber.MethodOptions, "/api/execute"},
		{fiber.MethodPost, "/api/auth/token"},
	} {
		require.NotNil(t, findRoute(routes, want.method, want.path), "expected %s %s to be registered", want.method, want.path)
	}
}
