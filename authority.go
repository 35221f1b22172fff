package authority

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fedledger/authority/audit"
	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/lifecycle"
	"github.com/fedledger/authority/plugin"
	"github.com/fedledger/authority/policy"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/store"
	"github.com/fedledger/authority/types"
)

// Authority is the main budget-authority enforcement engine.
type Authority struct {
	store   store.Store
	engine  *lifecycle.Engine
	plugins *plugin.Registry
	logger  *slog.Logger
	pol     policy.Policy
}

// New creates a new Authority instance.
func New(s store.Store, opts ...Option) *Authority {
	a := &Authority{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		pol:     policy.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.engine = lifecycle.NewEngine(a.pol)

	return a
}

// Option configures an Authority instance.
type Option func(*Authority)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
		a.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(a *Authority) {
		_ = a.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPolicy sets the enforcement policy knobs.
func WithPolicy(pol policy.Policy) Option {
	return func(a *Authority) {
		a.pol = pol
	}
}

// Start verifies the store and initializes plugins.
func (a *Authority) Start(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return err
	}

	a.plugins.EmitInit(ctx, a)

	a.logger.Info("authority engine started",
		"allowance_auto_close", a.pol.AllowanceAutoClose,
		"status_override", a.pol.AllowStatusOverride,
	)

	return nil
}

// Stop shuts down the Authority.
func (a *Authority) Stop() error {
	ctx := context.Background()
	a.plugins.EmitShutdown(ctx)

	return a.store.Close()
}

// ──────────────────────────────────────────────────
// Node Management
// ──────────────────────────────────────────────────

// NewNode is the caller-supplied input for node creation.
type NewNode struct {
	ParentID       id.FundID
	DocType        fund.DocType
	Title          string
	TotalAuthority types.Money

	// Project orders: the funding node obligated on acceptance and the
	// GT&C reference required by the acceptance guard.
	LinkedFundID id.FundID
	GTCRef       string

	Metadata map[string]string
}

// CreateNode creates a funding node in its document type's initial state.
// A non-root node's authority is a distribution out of its parent and is
// validated against the parent's remaining headroom before anything is
// written. Creating an asset with a positive amount posts its
// capitalization entry in the same commit.
func (a *Authority) CreateNode(ctx context.Context, spec NewNode, actor string) (*fund.Node, error) {
	initial, err := a.engine.Initial(spec.DocType)
	if err != nil {
		return nil, err
	}

	if spec.TotalAuthority.IsNegative() {
		return nil, fmt.Errorf("%w: negative authority %s", ErrInvalidInput, spec.TotalAuthority)
	}
	amount := spec.TotalAuthority
	if amount.Currency == "" {
		amount = types.USD(amount.Amount)
	}

	if err := a.checkParentRule(spec.DocType, spec.ParentID); err != nil {
		return nil, err
	}

	cmdID := id.NewCommandID()
	cs := &store.ChangeSet{CommandID: cmdID}

	if !spec.ParentID.IsNil() {
		parent, err := a.store.GetNode(ctx, spec.ParentID)
		if err != nil {
			return nil, err
		}
		if a.engine.IsTerminal(parent) {
			return nil, fmt.Errorf("%w: parent %s is %s", ErrNodeTerminal, parent.ID, parent.Status)
		}

		if amount.IsPositive() {
			res, err := compliance.Validate(ctx, a.store, parent.ID, amount)
			if err != nil {
				return nil, err
			}
			if !res.Valid {
				return nil, a.rejectCompliance(ctx, res)
			}
		}

		// Bump the parent's version so sibling creations competing for
		// the same headroom serialize instead of both committing.
		touch(cs, parent)
	}

	n := &fund.Node{
		Entity:          types.NewEntity(),
		ID:              newNodeID(spec.DocType),
		ParentID:        spec.ParentID,
		DocType:         spec.DocType,
		Title:           spec.Title,
		Status:          initial,
		TotalAuthority:  amount,
		ObligatedAmount: types.Zero(amount.Currency),
		DisbursedAmount: types.Zero(amount.Currency),
		LinkedFundID:    spec.LinkedFundID,
		GTCRef:          spec.GTCRef,
		Metadata:        spec.Metadata,
	}

	cs.Creates = append(cs.Creates, n)
	cs.Events = append(cs.Events, audit.New(n.ID, actor, audit.ActionCreated, spec.Title))

	var capEntry *fund.Node
	if spec.DocType == fund.DocAsset && amount.IsPositive() {
		capEntry = a.capitalizationEntry(n, actor, cs)
	}

	if err := a.commit(ctx, cs); err != nil {
		return nil, err
	}

	a.plugins.EmitNodeCreated(ctx, n)
	if capEntry != nil {
		a.plugins.EmitNodeCreated(ctx, capEntry)
	}

	return a.store.GetNode(ctx, n.ID)
}

// capitalizationEntry appends the Posted capitalization record for a newly
// created asset to the change set.
func (a *Authority) capitalizationEntry(asset *fund.Node, actor string, cs *store.ChangeSet) *fund.Node {
	entry := &fund.Node{
		Entity:          types.NewEntity(),
		ID:              id.NewCapitalizationID(),
		ParentID:        asset.ID,
		DocType:         fund.DocCapitalization,
		Title:           fmt.Sprintf("Capitalization of %s", asset.Title),
		Status:          fund.StatusPosted,
		TotalAuthority:  asset.TotalAuthority,
		ObligatedAmount: types.Zero(asset.TotalAuthority.Currency),
		DisbursedAmount: types.Zero(asset.TotalAuthority.Currency),
		SourceDocType:   fund.DocAsset,
		SourceDocID:     asset.ID,
	}

	cs.Creates = append(cs.Creates, entry)
	cs.Events = append(cs.Events, audit.New(entry.ID, actor, audit.ActionCapitalized,
		fmt.Sprintf("capitalized %s at %s", asset.Title, asset.TotalAuthority)))

	return entry
}

// checkParentRule enforces placement: appropriations are the only funding
// roots, asset records stand alone, and everything else must be created
// under a parent.
func (a *Authority) checkParentRule(dt fund.DocType, parentID id.FundID) error {
	switch dt {
	case fund.DocAppropriation:
		if !parentID.IsNil() {
			return ErrRootHasParent
		}
	case fund.DocAsset:
		// Asset records may stand alone or sit under a disposal case.
	default:
		if parentID.IsNil() {
			return fmt.Errorf("%w: %s", ErrParentRequired, dt)
		}
	}
	return nil
}

// GetNode retrieves a funding node by ID.
func (a *Authority) GetNode(ctx context.Context, nodeID id.FundID) (*fund.Node, error) {
	return a.store.GetNode(ctx, nodeID)
}

// Children retrieves the direct children of a funding node.
func (a *Authority) Children(ctx context.Context, nodeID id.FundID) ([]*fund.Node, error) {
	return a.store.Children(ctx, nodeID)
}

// ListNodes lists funding nodes matching the filter.
func (a *Authority) ListNodes(ctx context.Context, opts fund.ListOpts) ([]*fund.Node, error) {
	return a.store.ListNodes(ctx, opts)
}

// Available returns the authority remaining on a node after the
// distributions its non-released children hold.
func (a *Authority) Available(ctx context.Context, nodeID id.FundID) (types.Money, error) {
	n, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return types.ZeroUSD(), err
	}
	distributed, err := compliance.Distributed(ctx, a.store, n)
	if err != nil {
		return types.ZeroUSD(), err
	}
	return n.TotalAuthority.Subtract(distributed), nil
}

// ──────────────────────────────────────────────────
// Audit History
// ──────────────────────────────────────────────────

// QueryHistory returns the complete audit ledger for an entity in append
// order. Use audit.MostRecentFirst for display ordering.
func (a *Authority) QueryHistory(ctx context.Context, entityID id.ID) ([]*audit.Event, error) {
	return a.store.History(ctx, entityID)
}

// RemoveNode appends a removal marker to a released entity's audit trail.
// Nothing is ever erased: the node must already be in a state that released
// its authority (Rejected, Canceled, or Denied), and the marker is what
// display layers filter on when they hide the entity. History stays
// queryable.
func (a *Authority) RemoveNode(ctx context.Context, nodeID id.FundID, justification, actor string) error {
	node, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !fund.ReleasesAuthority(node.Status) {
		return fmt.Errorf("%w: node %s in state %s cannot be marked removed", ErrInvalidInput, nodeID, node.Status)
	}

	cs := &store.ChangeSet{
		CommandID: id.NewCommandID(),
		Events: []*audit.Event{
			audit.New(nodeID, actor, audit.ActionRemovedMarker, justification),
		},
	}
	if err := a.commit(ctx, cs); err != nil {
		return err
	}

	a.logger.Info("removal marker appended", "node_id", nodeID, "actor", actor)
	return nil
}

// ──────────────────────────────────────────────────
// Reporting Snapshots
// ──────────────────────────────────────────────────

// GenerateSnapshot materializes a deterministic, hash-stamped report over
// the current ledger state and appends it to the snapshot history.
func (a *Authority) GenerateSnapshot(ctx context.Context, reportType string, filter snapshot.Filter, actor string) (*snapshot.Metadata, error) {
	rec, err := snapshot.Generate(ctx, a.store, reportType, filter, actor)
	if err != nil {
		return nil, err
	}

	cs := &store.ChangeSet{
		CommandID: id.NewCommandID(),
		Snapshots: []*snapshot.Record{rec},
		Events: []*audit.Event{
			audit.New(rec.Metadata.ID, actor, audit.ActionSnapshotGenerated,
				fmt.Sprintf("%s over %d nodes, hash %s", reportType, rec.Metadata.NodeCount, rec.Metadata.Hash)),
		},
	}
	if err := a.commit(ctx, cs); err != nil {
		return nil, err
	}

	a.plugins.EmitSnapshotGenerated(ctx, &rec.Metadata)

	a.logger.Info("snapshot generated",
		"snapshot_id", rec.Metadata.ID,
		"report_type", reportType,
		"node_count", rec.Metadata.NodeCount,
		"hash", rec.Metadata.Hash,
	)

	return &rec.Metadata, nil
}

// GetSnapshot retrieves a stored snapshot by ID.
func (a *Authority) GetSnapshot(ctx context.Context, snapID id.SnapshotID) (*snapshot.Record, error) {
	return a.store.GetSnapshot(ctx, snapID)
}

// ListSnapshots lists snapshot metadata, optionally filtered by report type.
func (a *Authority) ListSnapshots(ctx context.Context, reportType string) ([]*snapshot.Metadata, error) {
	return a.store.ListSnapshots(ctx, reportType)
}

// newNodeID picks the ID prefix for a document type.
func newNodeID(dt fund.DocType) id.ID {
	switch dt {
	case fund.DocObligation:
		return id.NewObligationID()
	case fund.DocExpense:
		return id.NewExpenseID()
	case fund.DocContract:
		return id.NewContractID()
	case fund.DocCapitalization:
		return id.NewCapitalizationID()
	default:
		return id.NewFundID()
	}
}
