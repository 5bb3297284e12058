package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/analysis"
	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

// AnalysisHandler exposes the SmartScope pipeline over HTTP. All routes
// require an X-User-ID header identifying the requester.
type AnalysisHandler struct {
	service *analysis.Service
}

func NewAnalysisHandler(service *analysis.Service) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// ProcessAnalysis handles POST /api/v1/smartscope/analyze.
func (h *AnalysisHandler) ProcessAnalysis(c *fiber.Ctx) error {
	requester, ok := requesterID(c)
	if !ok {
		return nil
	}

	var req models.AnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	record, err := h.service.ProcessAnalysis(c.Context(), &req, requester)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

// GetAnalysis handles GET /api/v1/smartscope/:analysisID.
func (h *AnalysisHandler) GetAnalysis(c *fiber.Ctx) error {
	requester, ok := requesterID(c)
	if !ok {
		return nil
	}

	record, err := h.service.GetAnalysis(c.Params("analysisID"), requester)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(record)
}

// ListAnalyses handles GET /api/v1/smartscope/project/:projectID.
func (h *AnalysisHandler) ListAnalyses(c *fiber.Ctx) error {
	requester, ok := requesterID(c)
	if !ok {
		return nil
	}

	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	listing, err := h.service.ListAnalyses(c.Params("projectID"), requester, page, perPage)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(listing)
}

// SubmitFeedback handles POST /api/v1/smartscope/:analysisID/feedback.
func (h *AnalysisHandler) SubmitFeedback(c *fiber.Ctx) error {
	requester, ok := requesterID(c)
	if !ok {
		return nil
	}

	var req models.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if _, err := h.service.SubmitFeedback(c.Params("analysisID"), requester, &req); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetAccuracyMetrics handles GET /api/v1/smartscope/analytics/accuracy.
func (h *AnalysisHandler) GetAccuracyMetrics(c *fiber.Ctx) error {
	if _, ok := requesterID(c); !ok {
		return nil
	}

	result, err := h.service.GetAccuracyMetrics(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(result)
}

func requesterID(c *fiber.Ctx) (string, bool) {
	requester := c.Get("X-User-ID")
	if requester == "" {
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "X-User-ID header is required",
		})
		return "", false
	}
	return requester, true
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch analysis.KindOf(err) {
	case analysis.KindValidation:
		status = fiber.StatusBadRequest
	case analysis.KindNotFound:
		status = fiber.StatusNotFound
	case analysis.KindForbidden:
		status = fiber.StatusForbidden
	case analysis.KindUpstream, analysis.KindParse:
		status = fiber.StatusBadGateway
	case analysis.KindPersistence:
		status = fiber.StatusInternalServerError
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
