package costs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/metrics"
	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

// TokenCostUSD is the approximate blended per-token rate for the vision model.
const TokenCostUSD = 0.00001

// Store is the persistence collaborator for spend entries.
type Store interface {
	InsertCost(r *models.CostRecord) error
	CostsSince(since time.Time) ([]models.CostRecord, error)
}

// Monitor tracks vision model spend and budget utilisation. Budgets are soft:
// the monitor alerts through logs and never blocks a pipeline run.
type Monitor struct {
	store         Store
	model         string
	dailyBudget   float64
	monthlyBudget float64
}

func NewMonitor(store Store, model string, dailyBudget, monthlyBudget float64) *Monitor {
	return &Monitor{
		store:         store,
		model:         model,
		dailyBudget:   dailyBudget,
		monthlyBudget: monthlyBudget,
	}
}

// EstimateCost converts a token count to an approximate USD spend.
func (m *Monitor) EstimateCost(tokensUsed int) float64 {
	return round4(float64(tokensUsed) * TokenCostUSD)
}

// TrackAnalysisCost appends one spend entry for a completed analysis. A
// missing store makes this a logged no-op; a failed write is logged, never
// raised, so cost accounting cannot fail an analysis after the fact.
func (m *Monitor) TrackAnalysisCost(analysisID string, cost float64, tokensUsed int, processingTimeMS *int) {
	if m.store == nil {
		logger.Debug("Cost store not configured; skipping cost tracking",
			zap.String("analysis_id", analysisID),
		)
		return
	}

	record := &models.CostRecord{
		AnalysisID:       analysisID,
		APICost:          cost,
		TokensUsed:       tokensUsed,
		ProcessingTimeMS: processingTimeMS,
		CreatedAt:        time.Now(),
	}

	if err := m.store.InsertCost(record); err != nil {
		logger.Error("Failed to record analysis cost",
			zap.String("analysis_id", analysisID),
			zap.Error(err),
		)
		return
	}

	metrics.TokensUsed.WithLabelValues(m.model).Add(float64(tokensUsed))
	metrics.APICost.WithLabelValues(m.model).Add(cost)

	logger.Debug("Analysis cost recorded",
		zap.String("analysis_id", analysisID),
		zap.Float64("api_cost", cost),
		zap.Int("tokens_used", tokensUsed),
	)
}

// CheckBudgetStatus sums spend over the trailing 24 hours and 30 days and
// reports a traffic-light status against the configured budgets.
func (m *Monitor) CheckBudgetStatus() (*models.BudgetStatus, error) {
	now := time.Now()

	dailyTotal, err := m.sumCostsSince(now.Add(-24 * time.Hour))
	if err != nil {
		return nil, err
	}
	monthlyTotal, err := m.sumCostsSince(now.AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	dailyUsage := usagePercent(dailyTotal, m.dailyBudget)
	monthlyUsage := usagePercent(monthlyTotal, m.monthlyBudget)

	status := "green"
	if dailyUsage > 90 || monthlyUsage > 90 {
		status = "red"
	} else if dailyUsage > 70 || monthlyUsage > 70 {
		status = "amber"
	}

	metrics.BudgetUsagePercent.WithLabelValues("daily").Set(dailyUsage)
	metrics.BudgetUsagePercent.WithLabelValues("monthly").Set(monthlyUsage)

	return &models.BudgetStatus{
		Status:              status,
		DailySpend:          round4(dailyTotal),
		MonthlySpend:        round4(monthlyTotal),
		DailyBudget:         m.dailyBudget,
		MonthlyBudget:       m.monthlyBudget,
		DailyUsagePercent:   round2(dailyUsage),
		MonthlyUsagePercent: round2(monthlyUsage),
	}, nil
}

// GenerateCostReport summarises spend over a "<N>d" or "<N>w" timeframe,
// defaulting to 30 days when the code is unrecognized.
func (m *Monitor) GenerateCostReport(timeframe string) (*models.CostReport, error) {
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	since := time.Now().AddDate(0, 0, -30)

	if n, ok := parseTimeframe(timeframe, "d"); ok {
		since = time.Now().AddDate(0, 0, -n)
	} else if n, ok := parseTimeframe(timeframe, "w"); ok {
		since = time.Now().AddDate(0, 0, -7*n)
	}

	records, err := m.costsSince(since)
	if err != nil {
		return nil, err
	}

	var totalCost float64
	for _, record := range records {
		totalCost += record.APICost
	}

	report := &models.CostReport{
		Timeframe: timeframe,
		TotalCost: round4(totalCost),
		Analyses:  len(records),
	}
	if len(records) > 0 {
		report.AverageCost = round4(totalCost / float64(len(records)))
	}

	return report, nil
}

// SendBudgetAlert logs budget pressure. Advisory only: it never denies a run.
func (m *Monitor) SendBudgetAlert(usagePercent float64) {
	if usagePercent >= 100 {
		logger.Warn("SmartScope budget exceeded", zap.Float64("usage_percent", usagePercent))
	} else if usagePercent >= 80 {
		logger.Info("SmartScope budget warning", zap.Float64("usage_percent", usagePercent))
	}
}

func (m *Monitor) costsSince(since time.Time) ([]models.CostRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	records, err := m.store.CostsSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cost records: %w", err)
	}
	return records, nil
}

func (m *Monitor) sumCostsSince(since time.Time) (float64, error) {
	records, err := m.costsSince(since)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, record := range records {
		total += record.APICost
	}
	return total, nil
}

func parseTimeframe(timeframe, unit string) (int, bool) {
	if !strings.HasSuffix(timeframe, unit) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(timeframe, unit))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func usagePercent(spend, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	return spend / budget * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
