// Package observability provides a metrics extension for the authority
// engine that records lifecycle event counts via Prometheus.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/plugin"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnNodeCreated        = (*MetricsExtension)(nil)
	_ plugin.OnTransition         = (*MetricsExtension)(nil)
	_ plugin.OnObligationPosted   = (*MetricsExtension)(nil)
	_ plugin.OnDisbursementPosted = (*MetricsExtension)(nil)
	_ plugin.OnAuthorityAdjusted  = (*MetricsExtension)(nil)
	_ plugin.OnComplianceRejected = (*MetricsExtension)(nil)
	_ plugin.OnCommandFailed      = (*MetricsExtension)(nil)
	_ plugin.OnSnapshotGenerated  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide ledger metrics. Register it as an
// engine plugin to automatically track command activity.
type MetricsExtension struct {
	NodesCreated         *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	ObligationsPosted    prometheus.Counter
	DisbursementsPosted  prometheus.Counter
	AuthorityAdjustments prometheus.Counter
	ComplianceRejections prometheus.Counter
	CommandFailures      prometheus.Counter
	SnapshotsGenerated   prometheus.Counter
}

// NewMetricsExtension creates a MetricsExtension registered against the
// provided registerer. Pass prometheus.DefaultRegisterer for the global
// registry.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	m := &MetricsExtension{
		NodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_nodes_created_total",
			Help: "Funding nodes registered, by document type.",
		}, []string{"doc_type"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_transitions_total",
			Help: "Committed lifecycle transitions, by document type and resulting state.",
		}, []string{"doc_type", "status"}),
		ObligationsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_obligations_posted_total",
			Help: "Obligations emitted by orchestrated commands.",
		}),
		DisbursementsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_disbursements_posted_total",
			Help: "Disbursement expenses emitted by orchestrated commands.",
		}),
		AuthorityAdjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_adjustments_total",
			Help: "Audited authority increases and decreases.",
		}),
		ComplianceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_compliance_rejections_total",
			Help: "Commands blocked by the funds availability validator.",
		}),
		CommandFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_command_failures_total",
			Help: "Commands that failed for non-compliance reasons.",
		}),
		SnapshotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authority_snapshots_generated_total",
			Help: "Report snapshots generated.",
		}),
	}

	reg.MustRegister(
		m.NodesCreated,
		m.Transitions,
		m.ObligationsPosted,
		m.DisbursementsPosted,
		m.AuthorityAdjustments,
		m.ComplianceRejections,
		m.CommandFailures,
		m.SnapshotsGenerated,
	)
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "metrics" }

// OnNodeCreated implements plugin.OnNodeCreated.
func (m *MetricsExtension) OnNodeCreated(_ context.Context, n *fund.Node) error {
	m.NodesCreated.WithLabelValues(string(n.DocType)).Inc()
	return nil
}

// OnTransition implements plugin.OnTransition.
func (m *MetricsExtension) OnTransition(_ context.Context, n *fund.Node, _ fund.Status, _ string) error {
	m.Transitions.WithLabelValues(string(n.DocType), string(n.Status)).Inc()
	return nil
}

// OnObligationPosted implements plugin.OnObligationPosted.
func (m *MetricsExtension) OnObligationPosted(_ context.Context, _, _ *fund.Node) error {
	m.ObligationsPosted.Inc()
	return nil
}

// OnDisbursementPosted implements plugin.OnDisbursementPosted.
func (m *MetricsExtension) OnDisbursementPosted(_ context.Context, _, _ *fund.Node) error {
	m.DisbursementsPosted.Inc()
	return nil
}

// OnAuthorityAdjusted implements plugin.OnAuthorityAdjusted.
func (m *MetricsExtension) OnAuthorityAdjusted(_ context.Context, _ *fund.Node, _ types.Money) error {
	m.AuthorityAdjustments.Inc()
	return nil
}

// OnComplianceRejected implements plugin.OnComplianceRejected.
func (m *MetricsExtension) OnComplianceRejected(_ context.Context, _ *compliance.Result) error {
	m.ComplianceRejections.Inc()
	return nil
}

// OnCommandFailed implements plugin.OnCommandFailed.
func (m *MetricsExtension) OnCommandFailed(_ context.Context, _ id.CommandID, _ error) error {
	m.CommandFailures.Inc()
	return nil
}

// OnSnapshotGenerated implements plugin.OnSnapshotGenerated.
func (m *MetricsExtension) OnSnapshotGenerated(_ context.Context, _ *snapshot.Metadata) error {
	m.SnapshotsGenerated.Inc()
	return nil
}
