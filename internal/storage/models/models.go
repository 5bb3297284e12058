package models

import "time"

// Severities accepted for a SmartScope analysis, in descending urgency.
var Severities = []string{"Emergency", "High", "Medium", "Low"}

// AnalysisRequest is the inbound payload that triggers an analysis run.
// It is ephemeral and never persisted as-is.
type AnalysisRequest struct {
	ProjectID      string   `json:"project_id"`
	PhotoURLs      []string `json:"photo_urls"`
	PropertyType   string   `json:"property_type"`
	Area           string   `json:"area"`
	ReportedIssue  string   `json:"reported_issue"`
	Category       string   `json:"category"`
	OrganizationID string   `json:"organization_id,omitempty"`
	RequestedBy    string   `json:"requested_by,omitempty"`
	Priority       string   `json:"priority,omitempty"`
}

// ScopeItem is one contractor-actionable unit of recommended work.
type ScopeItem struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Trade          string   `json:"trade,omitempty"`
	Materials      []string `json:"materials"`
	SafetyNotes    []string `json:"safety_notes"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// MaterialItem is a structured material requirement for the analysis.
type MaterialItem struct {
	Name           string `json:"name"`
	Quantity       string `json:"quantity,omitempty"`
	Specifications string `json:"specifications,omitempty"`
}

// AnalysisMetadata captures processing details for a single run.
type AnalysisMetadata struct {
	ProcessingStatus string   `json:"processing_status"`
	ModelVersion     string   `json:"model_version"`
	TokensUsed       *int     `json:"tokens_used,omitempty"`
	APICost          *float64 `json:"api_cost,omitempty"`
	ProcessingTimeMS *int     `json:"processing_time_ms,omitempty"`
	RequestedBy      string   `json:"requested_by,omitempty"`
}

// SmartScopeAnalysis is the persisted result of one pipeline run.
// Records are insert-only; a fresh run produces a new record.
type SmartScopeAnalysis struct {
	ID                     string           `json:"id"`
	ProjectID              string           `json:"project_id"`
	PhotoURLs              []string         `json:"photo_urls"`
	PrimaryIssue           string           `json:"primary_issue"`
	Severity               string           `json:"severity"`
	Category               string           `json:"category"`
	ScopeItems             []ScopeItem      `json:"scope_items"`
	Materials              []MaterialItem   `json:"materials"`
	EstimatedHours         *float64         `json:"estimated_hours,omitempty"`
	SafetyNotes            string           `json:"safety_notes,omitempty"`
	AdditionalObservations []string         `json:"additional_observations"`
	ConfidenceScore        float64          `json:"confidence_score"`
	RawResponse            string           `json:"raw_response"`
	Metadata               AnalysisMetadata `json:"metadata"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// FeedbackRequest is the inbound payload for human feedback on an analysis.
type FeedbackRequest struct {
	FeedbackType        string                 `json:"feedback_type"`
	AccuracyRating      int                    `json:"accuracy_rating"`
	ScopeCorrections    map[string]interface{} `json:"scope_corrections"`
	MaterialCorrections map[string]interface{} `json:"material_corrections"`
	TimeCorrections     *float64               `json:"time_corrections,omitempty"`
	Comments            string                 `json:"comments,omitempty"`
}

// FeedbackRecord is a stored, append-only feedback entry.
type FeedbackRecord struct {
	ID                  string                 `json:"id"`
	AnalysisID          string                 `json:"analysis_id"`
	UserID              string                 `json:"user_id,omitempty"`
	FeedbackType        string                 `json:"feedback_type"`
	AccuracyRating      int                    `json:"accuracy_rating"`
	ScopeCorrections    map[string]interface{} `json:"scope_corrections"`
	MaterialCorrections map[string]interface{} `json:"material_corrections"`
	TimeCorrections     *float64               `json:"time_corrections,omitempty"`
	Comments            string                 `json:"comments,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}

// CostRecord is one append-only spend entry per completed analysis.
type CostRecord struct {
	AnalysisID       string    `json:"analysis_id"`
	APICost          float64   `json:"api_cost"`
	TokensUsed       int       `json:"tokens_used"`
	ProcessingTimeMS *int      `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BudgetStatus is the traffic-light spend summary.
type BudgetStatus struct {
	Status              string  `json:"status"`
	DailySpend          float64 `json:"daily_spend"`
	MonthlySpend        float64 `json:"monthly_spend"`
	DailyBudget         float64 `json:"daily_budget"`
	MonthlyBudget       float64 `json:"monthly_budget"`
	DailyUsagePercent   float64 `json:"daily_usage_percent"`
	MonthlyUsagePercent float64 `json:"monthly_usage_percent"`
}

// CostReport summarises spend over a timeframe code such as "30d" or "4w".
type CostReport struct {
	Timeframe   string  `json:"timeframe"`
	TotalCost   float64 `json:"total_cost"`
	Analyses    int     `json:"analyses"`
	AverageCost float64 `json:"average_cost"`
}

// AnalysisStat is the projection used for accuracy aggregation.
type AnalysisStat struct {
	Category        string
	ConfidenceScore float64
}

// AccuracyMetrics aggregates confidence and human feedback across analyses.
type AccuracyMetrics struct {
	TotalAnalyses          int                `json:"total_analyses"`
	AverageConfidence      float64            `json:"average_confidence"`
	AverageAccuracyRating  *float64           `json:"average_accuracy_rating,omitempty"`
	CategoryAccuracy       map[string]float64 `json:"category_accuracy"`
	LastFeedbackAt         *time.Time         `json:"last_feedback_at,omitempty"`
	ImprovementsLast30Days *float64           `json:"improvements_last_30_days,omitempty"`
}

// AnalysisListResponse is a paginated listing of analyses.
type AnalysisListResponse struct {
	Analyses []SmartScopeAnalysis `json:"analyses"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PerPage  int                  `json:"per_page"`
	HasNext  bool                 `json:"has_next"`
	HasPrev  bool                 `json:"has_prev"`
}

// Project is the minimal ownership record consulted for access checks.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ManagerID      string    `json:"manager_id"`
	CreatedAt      time.Time `json:"created_at"`
}
