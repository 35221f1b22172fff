// Package feed exposes committed ledger changes as a channel-based
// changefeed. Presentation layers subscribe to the feed instead of coupling
// to the store's internal representation: dashboards re-render on Change
// notifications and query the engine for current state.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/plugin"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnNodeCreated        = (*Extension)(nil)
	_ plugin.OnTransition         = (*Extension)(nil)
	_ plugin.OnObligationPosted   = (*Extension)(nil)
	_ plugin.OnDisbursementPosted = (*Extension)(nil)
	_ plugin.OnAuthorityAdjusted  = (*Extension)(nil)
	_ plugin.OnComplianceRejected = (*Extension)(nil)
	_ plugin.OnSnapshotGenerated  = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
)

// Kind classifies a change notification.
type Kind string

const (
	KindCreated      Kind = "created"
	KindTransitioned Kind = "transitioned"
	KindObligated    Kind = "obligated"
	KindDisbursed    Kind = "disbursed"
	KindAdjusted     Kind = "adjusted"
	KindRejected     Kind = "rejected"
	KindSnapshot     Kind = "snapshot"
)

// Change is one committed mutation, as seen by subscribers. Events for a
// single entity arrive in commit order; there is no cross-entity ordering
// guarantee beyond what a single command's atomic commit implies.
type Change struct {
	Kind      Kind         `json:"kind"`
	EntityID  id.ID        `json:"entity_id"`
	DocType   fund.DocType `json:"doc_type,omitempty"`
	Status    fund.Status  `json:"status,omitempty"`
	From      fund.Status  `json:"from,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Extension fans committed engine events out to subscriber channels.
// Register it as a plugin:
//
//	f := feed.New()
//	a := authority.New(store, authority.WithPlugin(f))
//	ch, cancel := f.Subscribe(64)
//	defer cancel()
type Extension struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
	closed bool
	logger *slog.Logger
}

// New creates a changefeed extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		subs:   make(map[int]chan Change),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures the extension.
type Option func(*Extension)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "changefeed" }

// Subscribe returns a buffered channel of changes and a cancel function.
// A subscriber that falls behind its buffer drops notifications rather
// than blocking the command pipeline; dashboards recover by re-querying.
func (e *Extension) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Change, buffer)
	subID := e.nextID
	e.nextID++

	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.subs[subID] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[subID]; ok {
			delete(e.subs, subID)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers a change to every subscriber without blocking.
func (e *Extension) publish(c Change) {
	c.Timestamp = time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	for subID, ch := range e.subs {
		select {
		case ch <- c:
		default:
			e.logger.Warn("changefeed subscriber behind, dropping change",
				"subscriber", subID,
				"kind", c.Kind,
				"entity_id", c.EntityID,
			)
		}
	}
}

// OnNodeCreated implements plugin.OnNodeCreated.
func (e *Extension) OnNodeCreated(_ context.Context, n *fund.Node) error {
	e.publish(Change{Kind: KindCreated, EntityID: n.ID, DocType: n.DocType, Status: n.Status})
	return nil
}

// OnTransition implements plugin.OnTransition.
func (e *Extension) OnTransition(_ context.Context, n *fund.Node, from fund.Status, _ string) error {
	e.publish(Change{Kind: KindTransitioned, EntityID: n.ID, DocType: n.DocType, Status: n.Status, From: from})
	return nil
}

// OnObligationPosted implements plugin.OnObligationPosted.
func (e *Extension) OnObligationPosted(_ context.Context, _, obligation *fund.Node) error {
	e.publish(Change{Kind: KindObligated, EntityID: obligation.ID, DocType: obligation.DocType, Status: obligation.Status})
	return nil
}

// OnDisbursementPosted implements plugin.OnDisbursementPosted.
func (e *Extension) OnDisbursementPosted(_ context.Context, _, expense *fund.Node) error {
	e.publish(Change{Kind: KindDisbursed, EntityID: expense.ID, DocType: expense.DocType, Status: expense.Status})
	return nil
}

// OnAuthorityAdjusted implements plugin.OnAuthorityAdjusted.
func (e *Extension) OnAuthorityAdjusted(_ context.Context, n *fund.Node, _ types.Money) error {
	e.publish(Change{Kind: KindAdjusted, EntityID: n.ID, DocType: n.DocType, Status: n.Status})
	return nil
}

// OnComplianceRejected implements plugin.OnComplianceRejected.
func (e *Extension) OnComplianceRejected(_ context.Context, result *compliance.Result) error {
	e.publish(Change{Kind: KindRejected, EntityID: result.NodeID})
	return nil
}

// OnSnapshotGenerated implements plugin.OnSnapshotGenerated.
func (e *Extension) OnSnapshotGenerated(_ context.Context, meta *snapshot.Metadata) error {
	e.publish(Change{Kind: KindSnapshot, EntityID: meta.ID})
	return nil
}

// OnShutdown implements plugin.OnShutdown: closes all subscriber channels.
func (e *Extension) OnShutdown(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for subID, ch := range e.subs {
		delete(e.subs, subID)
		close(ch)
	}
	return nil
}
