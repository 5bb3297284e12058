package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/costs"
	"github.com/instabids/smartscope/internal/imaging"
	"github.com/instabids/smartscope/internal/metrics"
	"github.com/instabids/smartscope/internal/projects"
	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/internal/storage/sqlite"
	"github.com/instabids/smartscope/internal/vision"
	"github.com/instabids/smartscope/pkg/logger"
)

// ImagePreprocessor fetches and normalizes photos for model consumption.
type ImagePreprocessor interface {
	Preprocess(ctx context.Context, urls []string) []imaging.ProcessedImage
}

// VisionAnalyzer runs one model invocation over normalized images.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, req *models.AnalysisRequest, images []imaging.ProcessedImage) (*vision.Result, error)
}

// AccessChecker answers whether a user may touch a project.
type AccessChecker interface {
	CanAccessProject(projectID, userID string) error
}

// SnapshotCache caches aggregate read responses. Optional.
type SnapshotCache interface {
	GetAccuracyMetrics(ctx context.Context) (*models.AccuracyMetrics, bool)
	SetAccuracyMetrics(ctx context.Context, m *models.AccuracyMetrics)
	InvalidateAggregates(ctx context.Context)
}

// Service orchestrates the SmartScope pipeline: validation, access control,
// image normalization, model invocation, persistence, and cost accounting.
type Service struct {
	db           *sqlite.Client
	preprocessor ImagePreprocessor
	vision       VisionAnalyzer
	costs        *costs.Monitor
	access       AccessChecker
	cache        SnapshotCache
}

func NewService(db *sqlite.Client, preprocessor ImagePreprocessor, visionClient VisionAnalyzer, costMonitor *costs.Monitor, access AccessChecker, cache SnapshotCache) *Service {
	return &Service{
		db:           db,
		preprocessor: preprocessor,
		vision:       visionClient,
		costs:        costMonitor,
		access:       access,
		cache:        cache,
	}
}

// ProcessAnalysis runs the full pipeline for one request and returns the
// persisted record. Each call produces a new record; reruns never overwrite.
func (s *Service) ProcessAnalysis(ctx context.Context, req *models.AnalysisRequest, requester string) (*models.SmartScopeAnalysis, error) {
	const op = "analysis.ProcessAnalysis"
	start := time.Now()

	if err := validateRequest(req); err != nil {
		metrics.AnalysisTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	req.Category = vision.NormalizeCategory(req.Category)

	if err := s.checkAccess(op, req.ProjectID, requester); err != nil {
		metrics.AnalysisTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	images := s.preprocessor.Preprocess(ctx, req.PhotoURLs)
	if len(images) == 0 {
		metrics.AnalysisTotal.WithLabelValues("rejected").Inc()
		return nil, newError(KindValidation, op, "no photos could be processed", nil)
	}

	result, err := s.vision.Analyze(ctx, req, images)
	if err != nil {
		metrics.AnalysisTotal.WithLabelValues("failed").Inc()
		return nil, classifyVisionError(op, err)
	}

	now := time.Now()
	record := &models.SmartScopeAnalysis{
		ID:                     uuid.NewString(),
		ProjectID:              req.ProjectID,
		PhotoURLs:              req.PhotoURLs,
		PrimaryIssue:           result.Extraction.PrimaryIssue,
		Severity:               result.Severity,
		Category:               req.Category,
		ScopeItems:             result.Extraction.ScopeItems,
		Materials:              result.Extraction.Materials,
		EstimatedHours:         result.Extraction.EstimatedHours,
		SafetyNotes:            result.Extraction.SafetyNotes,
		AdditionalObservations: result.Extraction.AdditionalObservations,
		ConfidenceScore:        result.Confidence,
		RawResponse:            result.RawResponse,
		Metadata:               result.Metadata,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	record.Metadata.RequestedBy = requester
	if record.Metadata.TokensUsed != nil {
		cost := s.costs.EstimateCost(*record.Metadata.TokensUsed)
		record.Metadata.APICost = &cost
	}

	if err := s.db.InsertAnalysis(record); err != nil {
		metrics.AnalysisTotal.WithLabelValues("failed").Inc()
		return nil, newError(KindPersistence, op, "failed to persist analysis", err)
	}

	go s.trackCosts(record)

	metrics.AnalysisTotal.WithLabelValues("completed").Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	metrics.ConfidenceScore.Observe(record.ConfidenceScore)

	logger.Info("Analysis completed",
		zap.String("analysis_id", record.ID),
		zap.String("project_id", record.ProjectID),
		zap.String("category", record.Category),
		zap.Float64("confidence", record.ConfidenceScore),
		zap.Int("images", len(images)),
	)

	return record, nil
}

// trackCosts records spend off the request path and emits budget alerts.
// Uses a background context so client disconnects cannot lose cost entries.
func (s *Service) trackCosts(record *models.SmartScopeAnalysis) {
	if record.Metadata.TokensUsed == nil || *record.Metadata.TokensUsed == 0 {
		return
	}

	cost := s.costs.EstimateCost(*record.Metadata.TokensUsed)
	s.costs.TrackAnalysisCost(record.ID, cost, *record.Metadata.TokensUsed, record.Metadata.ProcessingTimeMS)

	status, err := s.costs.CheckBudgetStatus()
	if err != nil {
		logger.Error("Failed to check budget after analysis", zap.Error(err))
		return
	}
	s.costs.SendBudgetAlert(math.Max(status.DailyUsagePercent, status.MonthlyUsagePercent))

	if s.cache != nil {
		s.cache.InvalidateAggregates(context.Background())
	}
}

// GetAnalysis fetches a single record after confirming project access.
func (s *Service) GetAnalysis(analysisID, requester string) (*models.SmartScopeAnalysis, error) {
	const op = "analysis.GetAnalysis"

	record, err := s.db.GetAnalysis(analysisID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, newError(KindNotFound, op, "analysis not found", err)
	}
	if err != nil {
		return nil, newError(KindPersistence, op, "failed to load analysis", err)
	}

	if err := s.checkAccess(op, record.ProjectID, requester); err != nil {
		return nil, err
	}

	return record, nil
}

// ListAnalyses returns one page of a project's analyses, newest first.
func (s *Service) ListAnalyses(projectID, requester string, page, perPage int) (*models.AnalysisListResponse, error) {
	const op = "analysis.ListAnalyses"

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	if err := s.checkAccess(op, projectID, requester); err != nil {
		return nil, err
	}

	offset := (page - 1) * perPage
	analyses, total, err := s.db.ListAnalyses(projectID, perPage, offset)
	if err != nil {
		return nil, newError(KindPersistence, op, "failed to list analyses", err)
	}
	if analyses == nil {
		analyses = []models.SmartScopeAnalysis{}
	}

	return &models.AnalysisListResponse{
		Analyses: analyses,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		HasNext:  offset+len(analyses) < total,
		HasPrev:  page > 1,
	}, nil
}

// SubmitFeedback appends a human feedback entry for an analysis.
func (s *Service) SubmitFeedback(analysisID, requester string, req *models.FeedbackRequest) (*models.FeedbackRecord, error) {
	const op = "analysis.SubmitFeedback"

	if req.AccuracyRating < 1 || req.AccuracyRating > 5 {
		return nil, newError(KindValidation, op, "accuracy_rating must be between 1 and 5", nil)
	}
	feedbackType := strings.TrimSpace(req.FeedbackType)
	if feedbackType == "" {
		feedbackType = "accuracy"
	}

	record, err := s.db.GetAnalysis(analysisID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, newError(KindNotFound, op, "analysis not found", err)
	}
	if err != nil {
		return nil, newError(KindPersistence, op, "failed to load analysis", err)
	}

	if err := s.checkAccess(op, record.ProjectID, requester); err != nil {
		return nil, err
	}

	feedback := &models.FeedbackRecord{
		ID:                  uuid.NewString(),
		AnalysisID:          analysisID,
		UserID:              requester,
		FeedbackType:        feedbackType,
		AccuracyRating:      req.AccuracyRating,
		ScopeCorrections:    req.ScopeCorrections,
		MaterialCorrections: req.MaterialCorrections,
		TimeCorrections:     req.TimeCorrections,
		Comments:            req.Comments,
		CreatedAt:           time.Now(),
	}
	if feedback.ScopeCorrections == nil {
		feedback.ScopeCorrections = map[string]interface{}{}
	}
	if feedback.MaterialCorrections == nil {
		feedback.MaterialCorrections = map[string]interface{}{}
	}

	if err := s.db.InsertFeedback(feedback); err != nil {
		return nil, newError(KindPersistence, op, "failed to store feedback", err)
	}

	metrics.FeedbackRating.Observe(float64(req.AccuracyRating))

	if s.cache != nil {
		s.cache.InvalidateAggregates(context.Background())
	}

	return feedback, nil
}

// GetAccuracyMetrics aggregates confidence and feedback across all analyses.
func (s *Service) GetAccuracyMetrics(ctx context.Context) (*models.AccuracyMetrics, error) {
	const op = "analysis.GetAccuracyMetrics"

	if s.cache != nil {
		if cached, ok := s.cache.GetAccuracyMetrics(ctx); ok {
			return cached, nil
		}
	}

	stats, err := s.db.AnalysisStats()
	if err != nil {
		return nil, newError(KindPersistence, op, "failed to load analysis stats", err)
	}
	feedback, err := s.db.ListFeedback()
	if err != nil {
		return nil, newError(KindPersistence, op, "failed to load feedback", err)
	}

	result := &models.AccuracyMetrics{
		TotalAnalyses:    len(stats),
		CategoryAccuracy: map[string]float64{},
	}

	if len(stats) > 0 {
		var confidenceSum float64
		categorySums := map[string]float64{}
		categoryCounts := map[string]int{}
		for _, stat := range stats {
			confidenceSum += stat.ConfidenceScore
			categorySums[stat.Category] += stat.ConfidenceScore
			categoryCounts[stat.Category]++
		}
		result.AverageConfidence = round2(confidenceSum / float64(len(stats)))
		for category, sum := range categorySums {
			result.CategoryAccuracy[category] = round2(sum / float64(categoryCounts[category]))
		}
	}

	if len(feedback) > 0 {
		var ratingSum float64
		for _, f := range feedback {
			ratingSum += float64(f.AccuracyRating)
		}
		avg := round2(ratingSum / float64(len(feedback)))
		result.AverageAccuracyRating = &avg

		// ListFeedback is newest first.
		last := feedback[0].CreatedAt
		result.LastFeedbackAt = &last
	}

	if s.cache != nil {
		s.cache.SetAccuracyMetrics(ctx, result)
	}

	return result, nil
}

func (s *Service) checkAccess(op, projectID, requester string) error {
	err := s.access.CanAccessProject(projectID, requester)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, projects.ErrNotFound):
		return newError(KindNotFound, op, "project not found", err)
	case errors.Is(err, projects.ErrForbidden):
		return newError(KindForbidden, op, "requester may not access this project", err)
	default:
		return newError(KindPersistence, op, "access check failed", err)
	}
}

func validateRequest(req *models.AnalysisRequest) error {
	const op = "analysis.validateRequest"

	if strings.TrimSpace(req.ProjectID) == "" {
		return newError(KindValidation, op, "project_id is required", nil)
	}
	if len(req.PhotoURLs) == 0 {
		return newError(KindValidation, op, "photo_urls must not be empty", nil)
	}
	for _, u := range req.PhotoURLs {
		if strings.TrimSpace(u) == "" {
			return newError(KindValidation, op, "photo_urls must not contain empty entries", nil)
		}
	}
	if strings.TrimSpace(req.ReportedIssue) == "" {
		return newError(KindValidation, op, "reported_issue is required", nil)
	}
	if strings.TrimSpace(req.Category) == "" {
		return newError(KindValidation, op, "category is required", nil)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func classifyVisionError(op string, err error) error {
	switch {
	case errors.Is(err, vision.ErrUpstream):
		return newError(KindUpstream, op, "vision provider failed", err)
	case errors.Is(err, vision.ErrParse):
		return newError(KindParse, op, "vision response was unusable", err)
	case errors.Is(err, vision.ErrBadSeverity):
		return newError(KindValidation, op, "vision response carried an invalid severity", err)
	default:
		return newError(KindUpstream, op, "vision analysis failed", err)
	}
}
