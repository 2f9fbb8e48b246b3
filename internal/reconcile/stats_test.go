package reconcile

import (
	"math"
	"testing"
	"time"

	"ticketrecon/internal/model"
)

func TestComputeStats(t *testing.T) {
	reports := []*model.ReconciliationReport{
		{Platform: "humanitix", Status: model.ReportStatusCompleted, StartTime: baseTime,
			DiscrepanciesFound: 5, DiscrepanciesResolved: 4, SyncHealth: model.SyncHealthWarning},
		{Platform: "eventbrite", Status: model.ReportStatusCompleted, StartTime: baseTime.Add(time.Hour),
			DiscrepanciesFound: 2, DiscrepanciesResolved: 2, SyncHealth: model.SyncHealthHealthy},
		{Platform: "eventbrite", Status: model.ReportStatusFailed, StartTime: baseTime.Add(2 * time.Hour)},
	}

	st := ComputeStats(reports)
	if st.TotalReports != 2 {
		t.Fatalf("total reports = %d", st.TotalReports)
	}
	if st.AverageDiscrepancies != 3.5 {
		t.Fatalf("average = %v", st.AverageDiscrepancies)
	}
	if math.Abs(st.ResolutionRate-6.0/7.0) > 1e-9 {
		t.Fatalf("resolution rate = %v", st.ResolutionRate)
	}
	if len(st.HealthTrend) != 2 || st.HealthTrend[0].Health != model.SyncHealthHealthy {
		t.Fatalf("trend should be newest first: %+v", st.HealthTrend)
	}
	hx := st.PlatformBreakdown["humanitix"]
	if hx == nil || hx.Reports != 1 || hx.Discrepancies != 5 || hx.Resolved != 4 {
		t.Fatalf("humanitix breakdown = %+v", hx)
	}
	if eb := st.PlatformBreakdown["eventbrite"]; eb == nil || eb.Reports != 1 {
		t.Fatalf("eventbrite breakdown = %+v", eb)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	st := ComputeStats(nil)
	if st.TotalReports != 0 || st.AverageDiscrepancies != 0 || st.ResolutionRate != 1 {
		t.Fatalf("unexpected empty stats %+v", st)
	}
}
