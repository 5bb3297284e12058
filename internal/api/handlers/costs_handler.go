package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/costs"
	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

// BudgetCache caches budget snapshots between requests. Optional.
type BudgetCache interface {
	GetBudgetStatus(ctx context.Context) (*models.BudgetStatus, bool)
	SetBudgetStatus(ctx context.Context, status *models.BudgetStatus)
}

// CostsHandler exposes spend reporting endpoints.
type CostsHandler struct {
	monitor *costs.Monitor
	cache   BudgetCache
}

func NewCostsHandler(monitor *costs.Monitor, cache BudgetCache) *CostsHandler {
	return &CostsHandler{monitor: monitor, cache: cache}
}

// BudgetStatus handles GET /api/v1/smartscope/costs/budget.
func (h *CostsHandler) BudgetStatus(c *fiber.Ctx) error {
	if _, ok := requesterID(c); !ok {
		return nil
	}

	if h.cache != nil {
		if cached, ok := h.cache.GetBudgetStatus(c.Context()); ok {
			return c.JSON(cached)
		}
	}

	status, err := h.monitor.CheckBudgetStatus()
	if err != nil {
		logger.Error("Failed to compute budget status", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute budget status",
		})
	}

	if h.cache != nil {
		h.cache.SetBudgetStatus(c.Context(), status)
	}

	return c.JSON(status)
}

// CostReport handles GET /api/v1/smartscope/costs/report.
func (h *CostsHandler) CostReport(c *fiber.Ctx) error {
	if _, ok := requesterID(c); !ok {
		return nil
	}

	report, err := h.monitor.GenerateCostReport(c.Query("timeframe", "30d"))
	if err != nil {
		logger.Error("Failed to generate cost report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate cost report",
		})
	}

	return c.JSON(report)
}
