package vision

import (
	"errors"
	"testing"

	"github.com/instabids/smartscope/internal/imaging"
)

func TestParseResponseDirectJSON(t *testing.T) {
	content := `{"primary_issue": "Leaking supply line", "severity": "High",
		"scope_items": [{"title": "Replace supply line", "description": "Swap braided line"}],
		"confidence": 0.82}`

	ext, err := ParseResponse(content)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if ext.PrimaryIssue != "Leaking supply line" {
		t.Errorf("primary_issue = %q", ext.PrimaryIssue)
	}
	if len(ext.ScopeItems) != 1 || ext.ScopeItems[0].Title != "Replace supply line" {
		t.Errorf("scope_items not parsed: %+v", ext.ScopeItems)
	}
	if ext.Confidence == nil || *ext.Confidence != 0.82 {
		t.Errorf("confidence not parsed: %v", ext.Confidence)
	}
}

func TestParseResponseSalvagesFencedJSON(t *testing.T) {
	content := "Here is the analysis:\n```json\n{\"primary_issue\": \"Tripped breaker\", \"severity\": \"Medium\"}\n```\nLet me know if you need more."

	ext, err := ParseResponse(content)
	if err != nil {
		t.Fatalf("ParseResponse failed to salvage: %v", err)
	}
	if ext.PrimaryIssue != "Tripped breaker" {
		t.Errorf("primary_issue = %q", ext.PrimaryIssue)
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	for _, content := range []string{"", "no json here", "{broken"} {
		if _, err := ParseResponse(content); !errors.Is(err, ErrParse) {
			t.Errorf("ParseResponse(%q) error = %v, want ErrParse", content, err)
		}
	}
}

func TestParseResponseDefaultsMissingFields(t *testing.T) {
	ext, err := ParseResponse(`{"primary_issue": "x", "scope_items": [{"description": "unnamed"}], "materials": [{"quantity": "2"}]}`)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if ext.ScopeItems[0].Title != "Task" {
		t.Errorf("untitled scope item = %q, want Task", ext.ScopeItems[0].Title)
	}
	if ext.Materials[0].Name != "Material" {
		t.Errorf("unnamed material = %q, want Material", ext.Materials[0].Name)
	}
	if ext.AdditionalObservations == nil {
		t.Error("additional_observations should default to empty slice")
	}
}

func TestValidateSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"High", "High", false},
		{"high", "High", false},
		{"EMERGENCY", "Emergency", false},
		{"", "Medium", false},
		{"  ", "Medium", false},
		{"urgent", "", true},
		{"critical", "", true},
	}

	for _, tt := range tests {
		got, err := ValidateSeverity(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrBadSeverity) {
				t.Errorf("ValidateSeverity(%q) error = %v, want ErrBadSeverity", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateSeverity(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	if got := Clamp01(-0.5); got != 0 {
		t.Errorf("Clamp01(-0.5) = %v", got)
	}
	if got := Clamp01(1.7); got != 1 {
		t.Errorf("Clamp01(1.7) = %v", got)
	}
	if got := Clamp01(0.42); got != 0.42 {
		t.Errorf("Clamp01(0.42) = %v", got)
	}
}

func TestHeuristicConfidence(t *testing.T) {
	if got := HeuristicConfidence(0.8, 3); got != 0.89 {
		t.Errorf("HeuristicConfidence(0.8, 3) = %v, want 0.89", got)
	}
	if got := HeuristicConfidence(0.5, 2); got != 0.75 {
		t.Errorf("HeuristicConfidence(0.5, 2) = %v, want 0.75", got)
	}
	if got := HeuristicConfidence(1.0, 5); got != 0.95 {
		t.Errorf("HeuristicConfidence(1.0, 5) = %v, want 0.95", got)
	}
	if got := HeuristicConfidence(0, 0); got != 0.6 {
		t.Errorf("HeuristicConfidence(0, 0) = %v, want 0.6", got)
	}
}

func TestResolveConfidence(t *testing.T) {
	images := []imaging.ProcessedImage{{QualityScore: 0.8}}

	reported := 1.4
	ext := &Extraction{Confidence: &reported}
	if got := ResolveConfidence(ext, images); got != 1.0 {
		t.Errorf("reported confidence should be clamped, got %v", got)
	}

	ext = &Extraction{ScopeItems: nil}
	if got := ResolveConfidence(ext, images); got != 0.84 {
		t.Errorf("heuristic fallback = %v, want 0.84", got)
	}
}
