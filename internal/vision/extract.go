package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/instabids/smartscope/internal/imaging"
	"github.com/instabids/smartscope/internal/storage/models"
)

var (
	// ErrParse indicates the model reply contained no salvageable JSON object.
	ErrParse = errors.New("vision response is not valid JSON")
	// ErrBadSeverity indicates a severity outside the closed enumeration.
	ErrBadSeverity = errors.New("unrecognized severity")
)

// Extraction is the structured payload pulled out of the model's reply.
// Missing optional fields default to empty rather than failing.
type Extraction struct {
	PrimaryIssue           string                `json:"primary_issue"`
	Severity               string                `json:"severity"`
	ScopeItems             []models.ScopeItem    `json:"scope_items"`
	Materials              []models.MaterialItem `json:"materials"`
	EstimatedHours         *float64              `json:"estimated_hours"`
	SafetyNotes            string                `json:"safety_notes"`
	AdditionalObservations []string              `json:"additional_observations"`
	Confidence             *float64              `json:"confidence"`
}

// ParseResponse parses the model reply as a single JSON object. When direct
// parsing fails it salvages the substring between the first '{' and the last
// '}' (models often wrap JSON in markdown fences) before giving up.
func ParseResponse(content string) (*Extraction, error) {
	content = strings.TrimSpace(content)

	var ext Extraction
	if err := json.Unmarshal([]byte(content), &ext); err == nil {
		normalizeExtraction(&ext)
		return &ext, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, ErrParse
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), &ext); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err)
	}

	normalizeExtraction(&ext)
	return &ext, nil
}

func normalizeExtraction(ext *Extraction) {
	if ext.ScopeItems == nil {
		ext.ScopeItems = []models.ScopeItem{}
	}
	if ext.Materials == nil {
		ext.Materials = []models.MaterialItem{}
	}
	if ext.AdditionalObservations == nil {
		ext.AdditionalObservations = []string{}
	}

	for i := range ext.ScopeItems {
		if ext.ScopeItems[i].Title == "" {
			ext.ScopeItems[i].Title = "Task"
		}
		if ext.ScopeItems[i].Materials == nil {
			ext.ScopeItems[i].Materials = []string{}
		}
		if ext.ScopeItems[i].SafetyNotes == nil {
			ext.ScopeItems[i].SafetyNotes = []string{}
		}
	}
	for i := range ext.Materials {
		if ext.Materials[i].Name == "" {
			ext.Materials[i].Name = "Material"
		}
	}
}

// ValidateSeverity normalizes a model-reported severity and checks it against
// the closed enumeration. An absent severity defaults to Medium.
func ValidateSeverity(severity string) (string, error) {
	if strings.TrimSpace(severity) == "" {
		return "Medium", nil
	}

	normalized := NormalizeSeverity(severity)
	for _, allowed := range models.Severities {
		if normalized == allowed {
			return normalized, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrBadSeverity, severity)
}

// Clamp01 clamps a confidence value into [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

// HeuristicConfidence derives a confidence signal when the model omits one:
// photo quality and scope thoroughness both raise downstream trust.
func HeuristicConfidence(averageQuality float64, scopeItemCount int) float64 {
	detailBonus := 0.0
	if scopeItemCount >= 3 {
		detailBonus = 0.05
	}
	score := math.Min(1.0, 0.6+0.3*averageQuality+detailBonus)
	return math.Round(score*100) / 100
}

// ResolveConfidence uses the model-reported confidence when present (clamped),
// otherwise falls back to the heuristic so every analysis carries a signal.
func ResolveConfidence(ext *Extraction, images []imaging.ProcessedImage) float64 {
	if ext.Confidence != nil {
		return Clamp01(*ext.Confidence)
	}
	return HeuristicConfidence(imaging.AverageQuality(images), len(ext.ScopeItems))
}
