package http

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/keepalive"
)

// SweepTrigger runs a sweep on demand. ran is false when a sweep was already
// in progress.
type SweepTrigger interface {
	TriggerSweep(ctx context.Context) (summary keepalive.SweepSummary, ran bool)
}

// KeepAliveHandlers serves the config lifecycle API.
type KeepAliveHandlers struct {
	service      *keepalive.Service
	sweeps       SweepTrigger
	exposeDetail bool
}

func NewKeepAliveHandlers(service *keepalive.Service, sweeps SweepTrigger, exposeDetail bool) *KeepAliveHandlers {
	return &KeepAliveHandlers{service: service, sweeps: sweeps, exposeDetail: exposeDetail}
}

type createConfigRequest struct {
	UserID     string `json:"userId"`
	UserToken  string `json:"userToken"`
	ConfigName string `json:"configName"`
	TargetUID  string `json:"targetUID"`
	Credential string `json:"credential"`
	// Cookie is accepted as an older name for credential.
	Cookie string `json:"cookie"`
}

type ownerRequest struct {
	UserID    string `json:"userId"`
	UserToken string `json:"userToken"`
}

// parseOwner reads userId and userToken from an optional JSON body, falling
// back to the query string and Authorization header.
func parseOwner(ctx *cartridge.Context) (ownerRequest, error) {
	var req ownerRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return req, err
		}
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = ctx.Query("userId")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.UserToken = userToken(ctx, req.UserToken)
	return req, nil
}

// ConfigCreateAction handles POST /api/configs
func (h *KeepAliveHandlers) ConfigCreateAction(ctx *cartridge.Context) error {
	var req createConfigRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest(ctx, "invalid JSON body")
	}
	if strings.TrimSpace(req.Credential) == "" {
		req.Credential = req.Cookie
	}

	created, err := h.service.Create(ctx.UserContext(), keepalive.CreateRequest{
		UserID:     req.UserID,
		UserToken:  userToken(ctx, req.UserToken),
		ConfigName: req.ConfigName,
		TargetUID:  req.TargetUID,
		Credential: req.Credential,
	})
	if err != nil {
		return respondError(ctx, err, h.exposeDetail)
	}

	return respondJSON(ctx, fiber.StatusOK, fiber.Map{
		"success":  true,
		"configId": created.ConfigID,
		"message":  created.Message,
	})
}

// ConfigListAction handles GET /api/configs
func (h *KeepAliveHandlers) ConfigListAction(ctx *cartridge.Context) error {
	userID := strings.TrimSpace(ctx.Query("userId"))
	records, err := h.service.List(ctx.UserContext(), userID, userToken(ctx, ""))
	if err != nil {
		return respondError(ctx, err, h.exposeDetail)
	}
	return respondJSON(ctx, fiber.StatusOK, fiber.Map{"configs": records})
}

// ConfigToggleAction handles POST /api/configs/:id/toggle
func (h *KeepAliveHandlers) ConfigToggleAction(ctx *cartridge.Context) error {
	owner, err := parseOwner(ctx)
	if err != nil {
		return badRequest(ctx, "invalid JSON body")
	}

	rec, err := h.service.Toggle(ctx.UserContext(), owner.UserID, owner.UserToken, ctx.Params("id"))
	if err != nil {
		return respondError(ctx, err, h.exposeDetail)
	}
	return respondJSON(ctx, fiber.StatusOK, fiber.Map{"success": true, "isActive": rec.IsActive})
}

// ConfigDeleteAction handles DELETE /api/configs/:id
func (h *KeepAliveHandlers) ConfigDeleteAction(ctx *cartridge.Context) error {
	owner, err := parseOwner(ctx)
	if err != nil {
		return badRequest(ctx, "invalid JSON body")
	}

	if err := h.service.Delete(ctx.UserContext(), owner.UserID, owner.UserToken, ctx.Params("id")); err != nil {
		return respondError(ctx, err, h.exposeDetail)
	}
	return respondJSON(ctx, fiber.StatusOK, fiber.Map{"success": true})
}

// TokenIssueAction handles POST /api/auth/token. Rotating an existing token
// requires the current one.
func (h *KeepAliveHandlers) TokenIssueAction(ctx *cartridge.Context) error {
	owner, err := parseOwner(ctx)
	if err != nil {
		return badRequest(ctx, "invalid JSON body")
	}

	auth, err := h.service.IssueToken(ctx.UserContext(), owner.UserID, owner.UserToken)
	if err != nil {
		return respondError(ctx, err, h.exposeDetail)
	}
	return respondJSON(ctx, fiber.StatusOK, fiber.Map{
		"success":   true,
		"userId":    auth.UserID,
		"userToken": auth.UserToken,
	})
}

// sweepReport is the public view of a sweep. Error texts name storage keys,
// which embed user ids, so only their count is exposed.
type sweepReport struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Scanned    int       `json:"scanned"`
	Due        int       `json:"due"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
}

func newSweepReport(summary keepalive.SweepSummary) sweepReport {
	return sweepReport{
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Scanned:    summary.Scanned,
		Due:        summary.Due,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Errors:     len(summary.Errors),
	}
}

// ExecuteAction handles POST /api/execute, running one sweep synchronously.
func (h *KeepAliveHandlers) ExecuteAction(ctx *cartridge.Context) error {
	summary, ran := h.sweeps.TriggerSweep(ctx.UserContext())
	if !ran {
		return respondJSON(ctx, fiber.StatusConflict, fiber.Map{"error": "a sweep is already running"})
	}
	return respondJSON(ctx, fiber.StatusOK, fiber.Map{
		"success": true,
		"message": "sweep completed",
		"summary": newSweepReport(summary),
	})
}
