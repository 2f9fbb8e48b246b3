package reconcile

import (
	"sort"
	"time"

	"ticketrecon/internal/model"
)

// HealthPoint 健康度趋势中的一个点
type HealthPoint struct {
	Date          time.Time `json:"date"`
	Health        string    `json:"health"`
	Discrepancies int       `json:"discrepancies"`
}

type PlatformStats struct {
	Reports       int `json:"reports"`
	Discrepancies int `json:"discrepancies"`
	Resolved      int `json:"resolved"`
}

// Stats 历史报告的只读聚合
type Stats struct {
	TotalReports         int                       `json:"total_reports"`
	AverageDiscrepancies float64                   `json:"average_discrepancies"`
	ResolutionRate       float64                   `json:"resolution_rate"`
	HealthTrend          []HealthPoint             `json:"health_trend"`
	PlatformBreakdown    map[string]*PlatformStats `json:"platform_breakdown"`
}

// ComputeStats 只统计已完成的报告；没有发现差异时解决率为 1
func ComputeStats(reports []*model.ReconciliationReport) *Stats {
	st := &Stats{PlatformBreakdown: make(map[string]*PlatformStats)}

	var found, resolved int
	for _, r := range reports {
		if r.Status != model.ReportStatusCompleted {
			continue
		}
		st.TotalReports++
		found += r.DiscrepanciesFound
		resolved += r.DiscrepanciesResolved

		ps, ok := st.PlatformBreakdown[r.Platform]
		if !ok {
			ps = &PlatformStats{}
			st.PlatformBreakdown[r.Platform] = ps
		}
		ps.Reports++
		ps.Discrepancies += r.DiscrepanciesFound
		ps.Resolved += r.DiscrepanciesResolved

		st.HealthTrend = append(st.HealthTrend, HealthPoint{
			Date:          r.StartTime,
			Health:        r.SyncHealth,
			Discrepancies: r.DiscrepanciesFound,
		})
	}

	if st.TotalReports > 0 {
		st.AverageDiscrepancies = float64(found) / float64(st.TotalReports)
	}
	st.ResolutionRate = 1
	if found > 0 {
		st.ResolutionRate = float64(resolved) / float64(found)
	}
	sort.SliceStable(st.HealthTrend, func(i, j int) bool {
		return st.HealthTrend[i].Date.After(st.HealthTrend[j].Date)
	})
	return st
}
