package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/keepalive"
)

const jsonContentType = "application/json; charset=utf-8"

// respondJSON writes body with the headers every API response carries.
func respondJSON(ctx *cartridge.Context, status int, body any) error {
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	if err := ctx.Status(status).JSON(body); err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, jsonContentType)
	return nil
}

// respondError maps service errors to HTTP statuses. Unexpected errors are
// logged and reported generically; development builds also expose the cause.
func respondError(ctx *cartridge.Context, err error, exposeDetail bool) error {
	var verr *keepalive.ValidationError
	switch {
	case errors.As(err, &verr):
		return respondJSON(ctx, fiber.StatusBadRequest, fiber.Map{"error": verr.Error()})
	case errors.Is(err, keepalive.ErrValidation):
		return respondJSON(ctx, fiber.StatusBadRequest, fiber.Map{"error": err.Error()})
	case errors.Is(err, keepalive.ErrUnauthorized):
		return respondJSON(ctx, fiber.StatusUnauthorized, fiber.Map{"error": "userToken is required"})
	case errors.Is(err, keepalive.ErrForbidden):
		return respondJSON(ctx, fiber.StatusForbidden, fiber.Map{"error": "invalid userToken"})
	case errors.Is(err, keepalive.ErrNotFound):
		return respondJSON(ctx, fiber.StatusNotFound, fiber.Map{"error": "config not found"})
	}

	ctx.Logger.Error("Request failed",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.Path()),
		slog.Any("error", err))

	body := fiber.Map{"error": "internal server error"}
	if exposeDetail {
		body["detail"] = err.Error()
	}
	return respondJSON(ctx, fiber.StatusInternalServerError, body)
}

func badRequest(ctx *cartridge.Context, message string) error {
	return respondJSON(ctx, fiber.StatusBadRequest, fiber.Map{"error": message})
}

// userToken reads the token from the body, the query string or a bearer
// Authorization header, in that order.
func userToken(ctx *cartridge.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	if token := strings.TrimSpace(ctx.Query("userToken")); token != "" {
		return token
	}
	auth := ctx.Get(fiber.HeaderAuthorization)
	if len(auth) > len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
