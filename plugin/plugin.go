// Package plugin provides an extensible hook system for the authority
// engine. Plugins observe committed lifecycle events to extend
// functionality: changefeeds, metrics, notification bridges.
package plugin

import (
	"context"

	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Engine lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks — fired after the commit succeeds
// ──────────────────────────────────────────────────

// OnNodeCreated is called when a funding node is registered.
type OnNodeCreated interface {
	Plugin
	OnNodeCreated(ctx context.Context, n *fund.Node) error
}

// OnTransition is called when a lifecycle transition commits.
type OnTransition interface {
	Plugin
	OnTransition(ctx context.Context, n *fund.Node, from fund.Status, event string) error
}

// OnObligationPosted is called when a command emits an obligation against a
// funding node.
type OnObligationPosted interface {
	Plugin
	OnObligationPosted(ctx context.Context, source, obligation *fund.Node) error
}

// OnDisbursementPosted is called when a disbursement expense commits.
type OnDisbursementPosted interface {
	Plugin
	OnDisbursementPosted(ctx context.Context, target, expense *fund.Node) error
}

// OnAuthorityAdjusted is called when a node's total authority changes.
type OnAuthorityAdjusted interface {
	Plugin
	OnAuthorityAdjusted(ctx context.Context, n *fund.Node, delta types.Money) error
}

// OnComplianceRejected is called when the validator blocks a command.
type OnComplianceRejected interface {
	Plugin
	OnComplianceRejected(ctx context.Context, result *compliance.Result) error
}

// OnCommandFailed is called when an orchestrated command fails for any
// reason other than compliance (invalid transition, guard, version
// conflict).
type OnCommandFailed interface {
	Plugin
	OnCommandFailed(ctx context.Context, commandID id.CommandID, err error) error
}

// OnSnapshotGenerated is called when a report snapshot is stamped.
type OnSnapshotGenerated interface {
	Plugin
	OnSnapshotGenerated(ctx context.Context, meta *snapshot.Metadata) error
}
