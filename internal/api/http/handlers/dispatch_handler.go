package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-engine/internal/api/dto"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
	"github.com/spec-kit/dispatch-engine/internal/service"
	apperrors "github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// DispatchHandler exposes the dispatch pipeline and its ledger.
type DispatchHandler struct {
	dispatch *service.DispatchService
}

// NewDispatchHandler constructs handler.
func NewDispatchHandler(dispatch *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatch}
}

// Process handles POST /v1/process.
func (h *DispatchHandler) Process(c *fiber.Ctx) error {
	var req dto.ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text is required", nil)
	}
	if req.Channel == "" {
		req.Channel = string(domain.ChannelChat)
	}
	if req.RequestID == "" {
		req.RequestID = c.Get("X-Request-ID")
	}

	result, err := h.dispatch.Process(c.UserContext(), service.ProcessInput{
		Text:    req.Text,
		Channel: domain.Channel(strings.ToLower(req.Channel)),
		Caller:  req.CallerContext(),
	})
	if err != nil {
		return err
	}
	c.Set("X-Request-ID", result.RequestID)
	return c.JSON(fiber.Map{"data": result})
}

// AuditTrail handles GET /v1/audit/:request_id.
func (h *DispatchHandler) AuditTrail(c *fiber.Ctx) error {
	requestID := c.Params("request_id")
	entries, err := h.dispatch.AuditTrail(c.UserContext(), requestID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditTrailResponse{RequestID: requestID, Entries: entries}})
}

// CorrectAudit handles POST /v1/audit/:request_id/corrections.
func (h *DispatchHandler) CorrectAudit(c *fiber.Ctx) error {
	var req dto.CorrectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.dispatch.CorrectAudit(c.UserContext(), c.Params("request_id"), ledger.Correction{
		EntryID:  req.EntryID,
		Note:     strings.TrimSpace(req.Note),
		Decision: req.Decision,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": entry})
}

// InspectKey handles GET /v1/idempotency/:key.
func (h *DispatchHandler) InspectKey(c *fiber.Ctx) error {
	inspection, err := h.dispatch.InspectKey(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": inspection})
}
