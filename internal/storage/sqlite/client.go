package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		manager_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(organization_id);

	CREATE TABLE IF NOT EXISTS org_members (
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (organization_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS smartscope_analyses (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		photo_urls TEXT NOT NULL,
		primary_issue TEXT NOT NULL,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		scope_items TEXT NOT NULL,
		materials TEXT NOT NULL,
		estimated_hours REAL,
		safety_notes TEXT,
		additional_observations TEXT NOT NULL,
		confidence_score REAL NOT NULL,
		raw_response TEXT,
		processing_status TEXT NOT NULL,
		model_version TEXT NOT NULL,
		tokens_used INTEGER,
		api_cost REAL,
		processing_time_ms INTEGER,
		requested_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_project ON smartscope_analyses(project_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_category ON smartscope_analyses(category);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON smartscope_analyses(created_at);

	CREATE TABLE IF NOT EXISTS smartscope_feedback (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		user_id TEXT,
		feedback_type TEXT NOT NULL,
		accuracy_rating INTEGER NOT NULL,
		scope_corrections TEXT NOT NULL,
		material_corrections TEXT NOT NULL,
		time_corrections REAL,
		comments TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES smartscope_analyses(id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_analysis ON smartscope_feedback(analysis_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON smartscope_feedback(created_at);

	CREATE TABLE IF NOT EXISTS smartscope_costs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		api_cost REAL NOT NULL,
		tokens_used INTEGER NOT NULL,
		processing_time_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES smartscope_analyses(id)
	);
	CREATE INDEX IF NOT EXISTS idx_costs_created ON smartscope_costs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertProject(p *models.Project) error {
	query := `INSERT INTO projects (id, organization_id, manager_id, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(query, p.ID, p.OrganizationID, p.ManagerID, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	return nil
}

func (c *Client) GetProject(id string) (*models.Project, error) {
	query := `SELECT id, organization_id, manager_id, created_at FROM projects WHERE id = ?`

	var p models.Project
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(&p.ID, &p.OrganizationID, &p.ManagerID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

func (c *Client) AddOrgMember(organizationID, userID string) error {
	query := `INSERT OR IGNORE INTO org_members (organization_id, user_id) VALUES (?, ?)`

	_, err := c.db.Exec(query, organizationID, userID)
	if err != nil {
		return fmt.Errorf("failed to add org member: %w", err)
	}

	return nil
}

func (c *Client) IsOrgMember(organizationID, userID string) (bool, error) {
	query := `SELECT COUNT(*) FROM org_members WHERE organization_id = ? AND user_id = ?`

	var count int
	err := c.db.QueryRow(query, organizationID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check org membership: %w", err)
	}

	return count > 0, nil
}

func (c *Client) InsertAnalysis(a *models.SmartScopeAnalysis) error {
	photoURLs, _ := json.Marshal(a.PhotoURLs)
	scopeItems, _ := json.Marshal(a.ScopeItems)
	materials, _ := json.Marshal(a.Materials)
	observations, _ := json.Marshal(a.AdditionalObservations)

	query := `
		INSERT INTO smartscope_analyses (id, project_id, photo_urls, primary_issue, severity, category,
			scope_items, materials, estimated_hours, safety_notes, additional_observations,
			confidence_score, raw_response, processing_status, model_version, tokens_used,
			api_cost, processing_time_ms, requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		a.ID,
		a.ProjectID,
		string(photoURLs),
		a.PrimaryIssue,
		a.Severity,
		a.Category,
		string(scopeItems),
		string(materials),
		nullFloat(a.EstimatedHours),
		nullString(a.SafetyNotes),
		string(observations),
		a.ConfidenceScore,
		a.RawResponse,
		a.Metadata.ProcessingStatus,
		a.Metadata.ModelVersion,
		nullInt(a.Metadata.TokensUsed),
		nullFloat(a.Metadata.APICost),
		nullInt(a.Metadata.ProcessingTimeMS),
		nullString(a.Metadata.RequestedBy),
		a.CreatedAt.Unix(),
		a.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	logger.Debug("Analysis inserted", zap.String("analysis_id", a.ID), zap.String("project_id", a.ProjectID))
	return nil
}

const analysisColumns = `id, project_id, photo_urls, primary_issue, severity, category,
	scope_items, materials, estimated_hours, safety_notes, additional_observations,
	confidence_score, raw_response, processing_status, model_version, tokens_used,
	api_cost, processing_time_ms, requested_by, created_at, updated_at`

func (c *Client) GetAnalysis(id string) (*models.SmartScopeAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM smartscope_analyses WHERE id = ?`

	row := c.db.QueryRow(query, id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return a, nil
}

// ListAnalyses returns one page of analyses for a project, newest first,
// along with the total number of records for the project.
func (c *Client) ListAnalyses(projectID string, limit, offset int) ([]models.SmartScopeAnalysis, int, error) {
	var total int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM smartscope_analyses WHERE project_id = ?`, projectID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	query := `SELECT ` + analysisColumns + ` FROM smartscope_analyses
		WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	rows, err := c.db.Query(query, projectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.SmartScopeAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}

	return analyses, total, nil
}

func (c *Client) AnalysisStats() ([]models.AnalysisStat, error) {
	query := `SELECT category, confidence_score FROM smartscope_analyses`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AnalysisStat
	for rows.Next() {
		var s models.AnalysisStat
		if err := rows.Scan(&s.Category, &s.ConfidenceScore); err != nil {
			return nil, fmt.Errorf("failed to scan analysis stat: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, nil
}

func (c *Client) InsertFeedback(f *models.FeedbackRecord) error {
	scopeCorrections, _ := json.Marshal(f.ScopeCorrections)
	materialCorrections, _ := json.Marshal(f.MaterialCorrections)

	query := `
		INSERT INTO smartscope_feedback (id, analysis_id, user_id, feedback_type, accuracy_rating,
			scope_corrections, material_corrections, time_corrections, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		f.ID,
		f.AnalysisID,
		nullString(f.UserID),
		f.FeedbackType,
		f.AccuracyRating,
		string(scopeCorrections),
		string(materialCorrections),
		nullFloat(f.TimeCorrections),
		nullString(f.Comments),
		f.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("analysis_id", f.AnalysisID),
		zap.Int("accuracy_rating", f.AccuracyRating),
	)

	return nil
}

// ListFeedback returns all feedback entries, newest first.
func (c *Client) ListFeedback() ([]models.FeedbackRecord, error) {
	query := `
		SELECT id, analysis_id, user_id, feedback_type, accuracy_rating,
			scope_corrections, material_corrections, time_corrections, comments, created_at
		FROM smartscope_feedback
		ORDER BY created_at DESC, rowid DESC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var records []models.FeedbackRecord
	for rows.Next() {
		var f models.FeedbackRecord
		var userID, comments sql.NullString
		var timeCorrections sql.NullFloat64
		var scopeCorrections, materialCorrections string
		var createdAt int64

		err := rows.Scan(&f.ID, &f.AnalysisID, &userID, &f.FeedbackType, &f.AccuracyRating,
			&scopeCorrections, &materialCorrections, &timeCorrections, &comments, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}

		f.UserID = userID.String
		f.Comments = comments.String
		if timeCorrections.Valid {
			v := timeCorrections.Float64
			f.TimeCorrections = &v
		}
		if err := json.Unmarshal([]byte(scopeCorrections), &f.ScopeCorrections); err != nil {
			return nil, fmt.Errorf("failed to decode scope_corrections column: %w", err)
		}
		if err := json.Unmarshal([]byte(materialCorrections), &f.MaterialCorrections); err != nil {
			return nil, fmt.Errorf("failed to decode material_corrections column: %w", err)
		}
		f.CreatedAt = time.Unix(createdAt, 0)

		records = append(records, f)
	}

	return records, nil
}

func (c *Client) InsertCost(r *models.CostRecord) error {
	query := `
		INSERT INTO smartscope_costs (analysis_id, api_cost, tokens_used, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		r.AnalysisID,
		r.APICost,
		r.TokensUsed,
		nullInt(r.ProcessingTimeMS),
		r.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}

	return nil
}

// CostsSince returns all cost entries created at or after the given time.
func (c *Client) CostsSince(since time.Time) ([]models.CostRecord, error) {
	query := `
		SELECT analysis_id, api_cost, tokens_used, processing_time_ms, created_at
		FROM smartscope_costs
		WHERE created_at >= ?
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var records []models.CostRecord
	for rows.Next() {
		var r models.CostRecord
		var processingMS sql.NullInt64
		var createdAt int64

		err := rows.Scan(&r.AnalysisID, &r.APICost, &r.TokensUsed, &processingMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}

		if processingMS.Valid {
			v := int(processingMS.Int64)
			r.ProcessingTimeMS = &v
		}
		r.CreatedAt = time.Unix(createdAt, 0)

		records = append(records, r)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*models.SmartScopeAnalysis, error) {
	var a models.SmartScopeAnalysis
	var photoURLs, scopeItems, materials, observations string
	var estimatedHours, apiCost sql.NullFloat64
	var safetyNotes, rawResponse, requestedBy sql.NullString
	var tokensUsed, processingMS sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID,
		&a.ProjectID,
		&photoURLs,
		&a.PrimaryIssue,
		&a.Severity,
		&a.Category,
		&scopeItems,
		&materials,
		&estimatedHours,
		&safetyNotes,
		&observations,
		&a.ConfidenceScore,
		&rawResponse,
		&a.Metadata.ProcessingStatus,
		&a.Metadata.ModelVersion,
		&tokensUsed,
		&apiCost,
		&processingMS,
		&requestedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(photoURLs), &a.PhotoURLs); err != nil {
		return nil, fmt.Errorf("failed to decode photo_urls column: %w", err)
	}
	if err := json.Unmarshal([]byte(scopeItems), &a.ScopeItems); err != nil {
		return nil, fmt.Errorf("failed to decode scope_items column: %w", err)
	}
	if err := json.Unmarshal([]byte(materials), &a.Materials); err != nil {
		return nil, fmt.Errorf("failed to decode materials column: %w", err)
	}
	if err := json.Unmarshal([]byte(observations), &a.AdditionalObservations); err != nil {
		return nil, fmt.Errorf("failed to decode additional_observations column: %w", err)
	}

	if estimatedHours.Valid {
		v := estimatedHours.Float64
		a.EstimatedHours = &v
	}
	a.SafetyNotes = safetyNotes.String
	a.RawResponse = rawResponse.String
	a.Metadata.RequestedBy = requestedBy.String
	if tokensUsed.Valid {
		v := int(tokensUsed.Int64)
		a.Metadata.TokensUsed = &v
	}
	if apiCost.Valid {
		v := apiCost.Float64
		a.Metadata.APICost = &v
	}
	if processingMS.Valid {
		v := int(processingMS.Int64)
		a.Metadata.ProcessingTimeMS = &v
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
