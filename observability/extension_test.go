package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fedledger/authority"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/observability"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/store/memory"
	"github.com/fedledger/authority/types"
)

func TestMetricsExtensionCountsCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(reg)

	a := authority.New(memory.New(), authority.WithPlugin(m))
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop() })

	appn, err := a.CreateNode(ctx, authority.NewNode{
		DocType:        fund.DocAppropriation,
		Title:          "FY26 O&M",
		TotalAuthority: types.USD(100000_00),
	}, "tester")
	if err != nil {
		t.Fatalf("CreateNode(appropriation): %v", err)
	}
	alw, err := a.CreateNode(ctx, authority.NewNode{
		ParentID:       appn.ID,
		DocType:        fund.DocAllowance,
		Title:          "Q1 allowance",
		TotalAuthority: types.USD(60000_00),
	}, "tester")
	if err != nil {
		t.Fatalf("CreateNode(allowance): %v", err)
	}

	if got := testutil.ToFloat64(m.NodesCreated.WithLabelValues(string(fund.DocAppropriation))); got != 1 {
		t.Errorf("appropriation creations: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NodesCreated.WithLabelValues(string(fund.DocAllowance))); got != 1 {
		t.Errorf("allowance creations: got %v, want 1", got)
	}

	if _, err := a.SubmitTransaction(ctx, alw.ID, types.USD(20000_00), "supplies", "tester"); err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if got := testutil.ToFloat64(m.ObligationsPosted); got != 1 {
		t.Errorf("obligations posted: got %v, want 1", got)
	}

	// Over-obligation must register as a compliance rejection, not a
	// command failure.
	if _, err := a.SubmitTransaction(ctx, alw.ID, types.USD(50000_00), "too much", "tester"); err == nil {
		t.Fatal("expected over-obligation to be rejected")
	}
	if got := testutil.ToFloat64(m.ComplianceRejections); got != 1 {
		t.Errorf("compliance rejections: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CommandFailures); got != 0 {
		t.Errorf("command failures: got %v, want 0", got)
	}

	if err := a.AdjustAuthority(ctx, alw.ID, types.USD(-5000_00), "sweep", "tester"); err != nil {
		t.Fatalf("AdjustAuthority: %v", err)
	}
	if got := testutil.ToFloat64(m.AuthorityAdjustments); got != 1 {
		t.Errorf("authority adjustments: got %v, want 1", got)
	}

	if _, err := a.GenerateSnapshot(ctx, snapshot.ReportFundingSummary, snapshot.Filter{}, "tester"); err != nil {
		t.Fatalf("GenerateSnapshot: %v", err)
	}
	if got := testutil.ToFloat64(m.SnapshotsGenerated); got != 1 {
		t.Errorf("snapshots generated: got %v, want 1", got)
	}
}
