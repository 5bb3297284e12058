package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartscope_analysis_duration_seconds",
			Help:    "End-to-end analysis pipeline duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartscope_analysis_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartscope_confidence_score",
			Help:    "Confidence scores of completed analyses",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartscope_llm_tokens_used",
			Help: "Total vision model tokens consumed",
		},
		[]string{"model"},
	)

	APICost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartscope_llm_cost_usd",
			Help: "Estimated vision model API cost in USD",
		},
		[]string{"model"},
	)

	ImagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartscope_images_processed_total",
			Help: "Total images successfully normalized for analysis",
		},
	)

	ImagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartscope_images_dropped_total",
			Help: "Total images dropped during ingestion",
		},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartscope_feedback_rating",
			Help:    "Human accuracy ratings submitted as feedback",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	BudgetUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smartscope_budget_usage_percent",
			Help: "Spend against budget per window",
		},
		[]string{"window"},
	)
)

func Init() {
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisTotal)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(TokensUsed)
	prometheus.MustRegister(APICost)
	prometheus.MustRegister(ImagesProcessed)
	prometheus.MustRegister(ImagesDropped)
	prometheus.MustRegister(FeedbackRating)
	prometheus.MustRegister(BudgetUsagePercent)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
