package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
)

func newTestResolver(store *memStore, threshold int64) *Resolver {
	cfg := config.DefaultReconciliationConfig()
	cfg.AutoCorrectThreshold = threshold
	return NewResolver(store, store, cfg, nil)
}

func missingDiscrepancy(id, orderID string, amount int64, severity string) *model.ReconciliationDiscrepancy {
	return &model.ReconciliationDiscrepancy{
		ID:           id,
		ReportID:     "r1",
		EventID:      "evt-1",
		Platform:     model.PlatformHumanitix,
		Type:         model.DiscrepancyMissingSale,
		Severity:     severity,
		OrderID:      orderID,
		PlatformData: platformSale(orderID, amount),
		Impact:       amount,
	}
}

func TestResolve_ThresholdIsStrict(t *testing.T) {
	cases := []struct {
		impact int64
		want   string
	}{
		{999, model.ResolutionAutoCorrected},
		{1000, model.ResolutionManualReview},
		{1001, model.ResolutionManualReview},
	}
	for _, tc := range cases {
		store := newMemStore()
		d := missingDiscrepancy("d1", "O1", tc.impact, model.SeverityLow)

		newTestResolver(store, 1000).Resolve(context.Background(), []*model.ReconciliationDiscrepancy{d})
		if d.Resolution != tc.want {
			t.Fatalf("impact %d: resolution = %s, want %s", tc.impact, d.Resolution, tc.want)
		}
		wantWrites := 0
		if tc.want == model.ResolutionAutoCorrected {
			wantWrites = 1
		}
		if len(store.applied) != wantWrites || len(store.audits) != wantWrites {
			t.Fatalf("impact %d: writes=%d audits=%d", tc.impact, len(store.applied), len(store.audits))
		}
	}
}

func TestResolve_AmountMismatchCorrectsToPlatformValue(t *testing.T) {
	store := newMemStore()
	l := store.add(localSale("O1", 5000, 0))
	d := &model.ReconciliationDiscrepancy{
		ID:           "d1",
		ReportID:     "r1",
		EventID:      "evt-1",
		Platform:     model.PlatformHumanitix,
		Type:         model.DiscrepancyAmountMismatch,
		Severity:     model.SeverityMedium,
		OrderID:      "O1",
		LocalSaleID:  model.Int64Ptr(l.ID),
		LocalData:    l,
		PlatformData: platformSale("O1", 4500),
		Impact:       500,
	}

	sum := newTestResolver(store, 1000).Resolve(context.Background(), []*model.ReconciliationDiscrepancy{d})
	if sum.AutoCorrected != 1 || d.Resolution != model.ResolutionAutoCorrected || d.ResolvedAt == nil {
		t.Fatalf("expected auto correction, got %+v / %+v", sum, d)
	}
	if got := store.sale(l.ID).TotalAmount; got != 4500 {
		t.Fatalf("local amount = %d, want 4500", got)
	}
	audits := store.auditsOfAction(model.AuditActionAutoCorrect)
	if len(audits) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audits))
	}
	if audits[0].Metadata["before"] != int64(5000) || audits[0].Metadata["after"] != int64(4500) {
		t.Fatalf("audit metadata = %v", audits[0].Metadata)
	}
}

func TestResolve_NeverAutoCorrects(t *testing.T) {
	store := newMemStore()
	canonical := store.add(localSale("", 500, 0))
	dup := store.add(localSale("O7", 500, 1))
	ds := []*model.ReconciliationDiscrepancy{
		{ID: "inconsistent", Type: model.DiscrepancyDataInconsistency, Severity: model.SeverityLow, Impact: 1,
			LocalSaleID: model.Int64Ptr(canonical.ID), LocalData: canonical},
		{ID: "confirmed-dup", Type: model.DiscrepancyDuplicateSale, Severity: model.SeverityMedium, Impact: 500,
			LocalSaleID: model.Int64Ptr(dup.ID), CanonicalSaleID: model.Int64Ptr(canonical.ID), PlatformConfirmed: true},
		{ID: "unknown", Type: "ghost_sale", Severity: model.SeverityLow, Impact: 1},
	}

	sum := newTestResolver(store, 1000).Resolve(context.Background(), ds)
	if sum.ManualReview != 3 || sum.AutoCorrected != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, d := range ds {
		if d.Resolution != model.ResolutionManualReview || d.ResolutionNotes == "" {
			t.Fatalf("%s: resolution=%s notes=%q", d.ID, d.Resolution, d.ResolutionNotes)
		}
	}
	if len(store.applied) != 0 {
		t.Fatalf("no writes expected, got %d", len(store.applied))
	}
}

func TestResolve_MergesDuplicate(t *testing.T) {
	store := newMemStore()
	canonical := store.add(localSale("", 500, 0))
	dup := store.add(localSale("", 500, 2))
	d := &model.ReconciliationDiscrepancy{
		ID: "d1", Type: model.DiscrepancyDuplicateSale, Severity: model.SeverityMedium, Impact: 500,
		LocalSaleID: model.Int64Ptr(dup.ID), CanonicalSaleID: model.Int64Ptr(canonical.ID),
	}

	newTestResolver(store, 1000).Resolve(context.Background(), []*model.ReconciliationDiscrepancy{d})
	got := store.sale(dup.ID)
	if got.Status != model.SaleStatusMerged || got.MergedInto == nil || *got.MergedInto != canonical.ID {
		t.Fatalf("duplicate not merged: %+v", got)
	}
	if store.sale(canonical.ID).Status != model.SaleStatusActive {
		t.Fatalf("canonical record must stay active")
	}
}

func TestResolve_WriteFailureGoesToManualReviewAndIsAudited(t *testing.T) {
	store := newMemStore()
	store.correctionErr = errors.New("deadlock detected")
	ds := []*model.ReconciliationDiscrepancy{
		missingDiscrepancy("d1", "O1", 100, model.SeverityLow),
		missingDiscrepancy("d2", "O2", 200, model.SeverityLow),
	}

	sum := newTestResolver(store, 1000).Resolve(context.Background(), ds)
	if sum.Failed != 2 || sum.ManualReview != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, d := range ds {
		if d.Resolution != model.ResolutionManualReview || !strings.Contains(d.ResolutionNotes, "deadlock") {
			t.Fatalf("%s: resolution=%s notes=%q", d.ID, d.Resolution, d.ResolutionNotes)
		}
	}
	if got := len(store.auditsOfAction(model.AuditActionCorrectionFailed)); got != 2 {
		t.Fatalf("expected 2 correction_failed audits, got %d", got)
	}
}

func TestResolve_IdempotentAndOrdered(t *testing.T) {
	store := newMemStore()
	ds := []*model.ReconciliationDiscrepancy{
		missingDiscrepancy("high", "O1", 300, model.SeverityHigh),
		missingDiscrepancy("low-big", "O2", 200, model.SeverityLow),
		missingDiscrepancy("low-small", "O3", 100, model.SeverityLow),
		missingDiscrepancy("medium", "O4", 50, model.SeverityMedium),
	}
	r := newTestResolver(store, 1000)

	r.Resolve(context.Background(), ds)
	var order []string
	for _, c := range store.applied {
		order = append(order, c.Sale.OrderID())
	}
	if strings.Join(order, ",") != "O3,O2,O4,O1" {
		t.Fatalf("correction order = %v", order)
	}

	sum := r.Resolve(context.Background(), ds)
	if sum.Skipped != len(ds) || sum.AutoCorrected != 0 {
		t.Fatalf("second pass summary = %+v", sum)
	}
	if len(store.applied) != 4 || len(store.audits) != 4 {
		t.Fatalf("second pass wrote again: applied=%d audits=%d", len(store.applied), len(store.audits))
	}
}
