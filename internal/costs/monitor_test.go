package costs

import (
	"testing"
	"time"

	"github.com/instabids/smartscope/internal/storage/models"
)

type fakeStore struct {
	records   []models.CostRecord
	insertErr error
}

func (f *fakeStore) InsertCost(r *models.CostRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, *r)
	return nil
}

func (f *fakeStore) CostsSince(since time.Time) ([]models.CostRecord, error) {
	var out []models.CostRecord
	for _, r := range f.records {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestEstimateCost(t *testing.T) {
	m := NewMonitor(nil, "m", 25, 500)

	if got := m.EstimateCost(1200); got != 0.012 {
		t.Errorf("EstimateCost(1200) = %v, want 0.012", got)
	}
	if got := m.EstimateCost(0); got != 0 {
		t.Errorf("EstimateCost(0) = %v, want 0", got)
	}
	if got := m.EstimateCost(12345); got != 0.1235 {
		t.Errorf("EstimateCost(12345) = %v, want 0.1235", got)
	}
}

func TestTrackAnalysisCost(t *testing.T) {
	store := &fakeStore{}
	m := NewMonitor(store, "m", 25, 500)

	ms := 4200
	m.TrackAnalysisCost("analysis-1", 0.012, 1200, &ms)

	if len(store.records) != 1 {
		t.Fatalf("expected 1 cost record, got %d", len(store.records))
	}
	r := store.records[0]
	if r.AnalysisID != "analysis-1" || r.APICost != 0.012 || r.TokensUsed != 1200 {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestTrackAnalysisCostWithoutStore(t *testing.T) {
	m := NewMonitor(nil, "m", 25, 500)
	// Must not panic.
	m.TrackAnalysisCost("analysis-1", 0.01, 1000, nil)
}

func TestCheckBudgetStatus(t *testing.T) {
	tests := []struct {
		name       string
		dailySpend float64
		want       string
	}{
		{"green under threshold", 0.5, "green"},
		{"amber over 70 percent", 0.75, "amber"},
		{"red over 90 percent", 0.95, "red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{records: []models.CostRecord{
				{AnalysisID: "a", APICost: tt.dailySpend, TokensUsed: 100, CreatedAt: time.Now()},
			}}
			m := NewMonitor(store, "m", 1.0, 100.0)

			status, err := m.CheckBudgetStatus()
			if err != nil {
				t.Fatalf("CheckBudgetStatus failed: %v", err)
			}
			if status.Status != tt.want {
				t.Errorf("status = %q, want %q", status.Status, tt.want)
			}
		})
	}
}

func TestCheckBudgetStatusIgnoresOldSpend(t *testing.T) {
	store := &fakeStore{records: []models.CostRecord{
		{AnalysisID: "old", APICost: 5.0, TokensUsed: 100, CreatedAt: time.Now().AddDate(0, 0, -40)},
		{AnalysisID: "recent", APICost: 0.2, TokensUsed: 100, CreatedAt: time.Now()},
	}}
	m := NewMonitor(store, "m", 1.0, 100.0)

	status, err := m.CheckBudgetStatus()
	if err != nil {
		t.Fatalf("CheckBudgetStatus failed: %v", err)
	}
	if status.DailySpend != 0.2 {
		t.Errorf("daily spend = %v, want 0.2", status.DailySpend)
	}
	if status.MonthlySpend != 0.2 {
		t.Errorf("monthly spend = %v, want 0.2", status.MonthlySpend)
	}
	if status.DailyUsagePercent != 20.0 {
		t.Errorf("daily usage = %v, want 20", status.DailyUsagePercent)
	}
}

func TestGenerateCostReport(t *testing.T) {
	store := &fakeStore{records: []models.CostRecord{
		{AnalysisID: "a", APICost: 0.01, TokensUsed: 100, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{AnalysisID: "b", APICost: 0.03, TokensUsed: 300, CreatedAt: time.Now().AddDate(0, 0, -3)},
		{AnalysisID: "c", APICost: 0.05, TokensUsed: 500, CreatedAt: time.Now().AddDate(0, 0, -20)},
	}}
	m := NewMonitor(store, "m", 25, 500)

	report, err := m.GenerateCostReport("7d")
	if err != nil {
		t.Fatalf("GenerateCostReport failed: %v", err)
	}
	if report.Analyses != 2 {
		t.Errorf("7d analyses = %d, want 2", report.Analyses)
	}
	if report.TotalCost != 0.04 {
		t.Errorf("7d total = %v, want 0.04", report.TotalCost)
	}
	if report.AverageCost != 0.02 {
		t.Errorf("7d average = %v, want 0.02", report.AverageCost)
	}

	report, err = m.GenerateCostReport("1w")
	if err != nil {
		t.Fatalf("GenerateCostReport failed: %v", err)
	}
	if report.Analyses != 2 {
		t.Errorf("1w analyses = %d, want 2", report.Analyses)
	}

	// Unrecognized timeframes fall back to 30 days.
	report, err = m.GenerateCostReport("whenever")
	if err != nil {
		t.Fatalf("GenerateCostReport failed: %v", err)
	}
	if report.Analyses != 3 {
		t.Errorf("fallback analyses = %d, want 3", report.Analyses)
	}
}

func TestParseTimeframe(t *testing.T) {
	if n, ok := parseTimeframe("14d", "d"); !ok || n != 14 {
		t.Errorf("parseTimeframe(14d) = %d, %v", n, ok)
	}
	if _, ok := parseTimeframe("d", "d"); ok {
		t.Error("bare unit should not parse")
	}
	if _, ok := parseTimeframe("-3d", "d"); ok {
		t.Error("negative spans should not parse")
	}
	if _, ok := parseTimeframe("3w", "d"); ok {
		t.Error("mismatched unit should not parse")
	}
}
