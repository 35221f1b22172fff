package authority

import (
	"context"
	"fmt"

	"github.com/fedledger/authority/audit"
	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/lifecycle"
	"github.com/fedledger/authority/store"
	"github.com/fedledger/authority/types"
)

// Command execution is two-phase. Phase one reads borrowed clones, runs the
// lifecycle engine and the compliance validator, and assembles a single
// change set: the source mutation, every derived emission, and one audit
// event per mutated entity. Phase two commits the change set atomically
// under optimistic version checks. A rejection at any point leaves the
// ledger untouched; a version conflict surfaces as a retryable error.

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// SubmitTransaction obligates funds against a target node. The commitment
// is validated against the node's remaining authority; a shortfall is
// rejected with a typed compliance error and nothing is written.
func (a *Authority) SubmitTransaction(ctx context.Context, targetID id.FundID, amount types.Money, justification, actor string) (id.ObligationID, error) {
	if !amount.IsPositive() {
		return id.ID{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	target, err := a.store.GetNode(ctx, targetID)
	if err != nil {
		return id.ID{}, err
	}
	if a.engine.IsTerminal(target) {
		return id.ID{}, fmt.Errorf("%w: node %s is %s", ErrNodeTerminal, target.ID, target.Status)
	}

	res, err := compliance.Validate(ctx, a.store, target.ID, amount)
	if err != nil {
		return id.ID{}, err
	}
	if !res.Valid {
		return id.ID{}, a.rejectCompliance(ctx, res)
	}

	obl := newObligation(target, amount)
	target.ObligatedAmount = target.ObligatedAmount.Add(amount)

	cs := &store.ChangeSet{
		CommandID: id.NewCommandID(),
		Creates:   []*fund.Node{obl},
		Updates:   []store.NodeWrite{{Node: target, ExpectedVersion: target.Version}},
		Events: []*audit.Event{
			audit.New(target.ID, actor, audit.ActionObligationPosted,
				fmt.Sprintf("obligated %s: %s", amount, justification)),
			audit.New(obl.ID, actor, audit.ActionCreated, justification),
		},
	}

	if err := a.commit(ctx, cs); err != nil {
		return id.ID{}, err
	}

	a.plugins.EmitObligationPosted(ctx, target, obl)
	return obl.ID, nil
}

// RecordDisbursement posts an expense against an obligation. Disbursements
// may never exceed the obligated amount; a disbursement that exactly
// exhausts it liquidates the obligation in the same commit.
func (a *Authority) RecordDisbursement(ctx context.Context, oblID id.ObligationID, amount types.Money, justification, actor string) (id.ExpenseID, error) {
	if !amount.IsPositive() {
		return id.ID{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	obl, err := a.store.GetNode(ctx, oblID)
	if err != nil {
		return id.ID{}, err
	}
	if obl.DocType != fund.DocObligation {
		return id.ID{}, fmt.Errorf("%w: %s is a %s, not an obligation", ErrInvalidInput, obl.ID, obl.DocType)
	}
	if obl.Status != fund.StatusObligated {
		return id.ID{}, fmt.Errorf("%w: obligation %s is %s", ErrNodeTerminal, obl.ID, obl.Status)
	}

	if err := compliance.ValidateDisbursement(obl, amount); err != nil {
		a.plugins.EmitCommandFailed(ctx, id.NewCommandID(), err)
		return id.ID{}, err
	}

	obl.DisbursedAmount = obl.DisbursedAmount.Add(amount)

	exp := &fund.Node{
		Entity:          types.NewEntity(),
		ID:              id.NewExpenseID(),
		ParentID:        obl.ID,
		DocType:         fund.DocExpense,
		Title:           fmt.Sprintf("Disbursement against %s", obl.Title),
		Status:          fund.StatusPosted,
		TotalAuthority:  amount,
		ObligatedAmount: types.Zero(amount.Currency),
		DisbursedAmount: amount,
		SourceDocType:   fund.DocObligation,
		SourceDocID:     obl.ID,
	}

	// A full liquidation rides through the obligation's own state machine
	// so the guard stays the single source of truth.
	action := audit.ActionDisbursementPosted
	if obl.DisbursedAmount.Equal(obl.TotalAuthority) {
		outcome, err := a.engine.Eval(obl, lifecycle.EventComplete, lifecycle.Payload{Actor: actor})
		if err != nil {
			return id.ID{}, err
		}
		obl.Status = outcome.Next
		action = string(outcome.Next)
	}

	cs := &store.ChangeSet{
		CommandID: id.NewCommandID(),
		Creates:   []*fund.Node{exp},
		Updates:   []store.NodeWrite{{Node: obl, ExpectedVersion: obl.Version}},
		Events: []*audit.Event{
			audit.New(obl.ID, actor, action,
				fmt.Sprintf("disbursed %s: %s", amount, justification)),
			audit.New(exp.ID, actor, audit.ActionCreated, justification),
		},
	}

	if err := a.commit(ctx, cs); err != nil {
		return id.ID{}, err
	}

	a.plugins.EmitDisbursementPosted(ctx, obl, exp)
	return exp.ID, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// AdvanceLifecycle applies a lifecycle event to a document. The transition
// and every derived emission it carries (an accepted order's obligation, a
// paid benefit's expense, an awarded requisition's contract) commit
// atomically; any rejection leaves the document in its prior state.
func (a *Authority) AdvanceLifecycle(ctx context.Context, nodeID id.FundID, event lifecycle.Event, p lifecycle.Payload) (fund.Status, error) {
	n, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return "", err
	}

	outcome, err := a.engine.Eval(n, event, p)
	if err != nil {
		return "", err
	}

	from := n.Status
	cs := &store.ChangeSet{CommandID: id.NewCommandID()}

	var emits []func()
	for _, effect := range outcome.Effects {
		done, err := a.applyEffect(ctx, cs, n, p, effect)
		if err != nil {
			return "", err
		}
		if done != nil {
			emits = append(emits, done)
		}
	}

	n.Status = outcome.Next
	cs.Updates = append(cs.Updates, store.NodeWrite{Node: n, ExpectedVersion: n.Version})
	cs.Events = append(cs.Events, audit.New(n.ID, p.Actor, string(outcome.Next), p.Justification))

	if err := a.commit(ctx, cs); err != nil {
		return "", err
	}

	a.plugins.EmitTransition(ctx, n, from, string(event))
	for _, emit := range emits {
		emit()
	}

	return n.Status, nil
}

// applyEffect folds one derived emission into the change set. The returned
// closure fires its plugin notification after a successful commit.
func (a *Authority) applyEffect(ctx context.Context, cs *store.ChangeSet, n *fund.Node, p lifecycle.Payload, effect lifecycle.Effect) (func(), error) {
	switch effect {
	case lifecycle.EffectReduceAuthority:
		res, err := compliance.ValidateAdjustment(ctx, a.store, n.ID, p.Amount.Negate())
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, a.rejectCompliance(ctx, res)
		}
		n.TotalAuthority = n.TotalAuthority.Subtract(p.Amount)
		return nil, nil

	case lifecycle.EffectCommitFull:
		n.ObligatedAmount = n.TotalAuthority
		return nil, nil

	case lifecycle.EffectEmitObligation:
		return a.emitObligation(ctx, cs, n, p)

	case lifecycle.EffectEmitExpense:
		exp := &fund.Node{
			Entity:          types.NewEntity(),
			ID:              id.NewExpenseID(),
			ParentID:        n.ID,
			DocType:         fund.DocExpense,
			Title:           fmt.Sprintf("Disbursement for %s", n.Title),
			Status:          fund.StatusPosted,
			TotalAuthority:  n.TotalAuthority,
			ObligatedAmount: types.Zero(n.TotalAuthority.Currency),
			DisbursedAmount: n.TotalAuthority,
			SourceDocType:   n.DocType,
			SourceDocID:     n.ID,
		}
		n.DisbursedAmount = n.TotalAuthority
		cs.Creates = append(cs.Creates, exp)
		cs.Events = append(cs.Events, audit.New(exp.ID, p.Actor, audit.ActionCreated,
			fmt.Sprintf("disbursed %s", n.TotalAuthority)))
		return func() { a.plugins.EmitDisbursementPosted(ctx, n, exp) }, nil

	case lifecycle.EffectEmitContract:
		ctr := &fund.Node{
			Entity:          types.NewEntity(),
			ID:              id.NewContractID(),
			ParentID:        n.ID,
			DocType:         fund.DocContract,
			Title:           fmt.Sprintf("Contract for %s", n.Title),
			Status:          fund.StatusPosted,
			TotalAuthority:  n.TotalAuthority,
			ObligatedAmount: types.Zero(n.TotalAuthority.Currency),
			DisbursedAmount: types.Zero(n.TotalAuthority.Currency),
			SourceDocType:   n.DocType,
			SourceDocID:     n.ID,
		}
		cs.Creates = append(cs.Creates, ctr)
		cs.Events = append(cs.Events, audit.New(ctr.ID, p.Actor, audit.ActionContractAwarded,
			fmt.Sprintf("awarded from %s at %s", n.Title, n.TotalAuthority)))
		return func() { a.plugins.EmitNodeCreated(ctx, ctr) }, nil

	default:
		return nil, fmt.Errorf("%w: unknown effect %q", ErrInvalidInput, effect)
	}
}

// emitObligation posts the accepted order's full amount against its linked
// funding node. The availability check runs against the fund before the
// order's own transition is allowed to commit: an order that cannot be
// funded is not accepted.
func (a *Authority) emitObligation(ctx context.Context, cs *store.ChangeSet, order *fund.Node, p lifecycle.Payload) (func(), error) {
	fundNode, err := a.store.GetNode(ctx, order.LinkedFundID)
	if err != nil {
		return nil, err
	}
	if a.engine.IsTerminal(fundNode) {
		return nil, fmt.Errorf("%w: funding node %s is %s", ErrNodeTerminal, fundNode.ID, fundNode.Status)
	}

	amount := order.TotalAuthority
	res, err := compliance.Validate(ctx, a.store, fundNode.ID, amount)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, a.rejectCompliance(ctx, res)
	}

	obl := newObligation(fundNode, amount)
	obl.SourceDocType = order.DocType
	obl.SourceDocID = order.ID

	fundNode.ObligatedAmount = fundNode.ObligatedAmount.Add(amount)
	order.ObligatedAmount = amount

	cs.Creates = append(cs.Creates, obl)
	cs.Updates = append(cs.Updates, store.NodeWrite{Node: fundNode, ExpectedVersion: fundNode.Version})
	cs.Events = append(cs.Events,
		audit.New(fundNode.ID, p.Actor, audit.ActionObligationPosted,
			fmt.Sprintf("obligated %s for order %s", amount, order.ID)),
		audit.New(obl.ID, p.Actor, audit.ActionCreated,
			fmt.Sprintf("emitted by acceptance of %s", order.ID)),
	)

	return func() { a.plugins.EmitObligationPosted(ctx, fundNode, obl) }, nil
}

// ──────────────────────────────────────────────────
// Authority Adjustments
// ──────────────────────────────────────────────────

// AdjustAuthority applies an audited increase or decrease to a node's total
// authority. Increases are validated against every ancestor's headroom;
// decreases must not drop below what the node has already distributed or
// obligated.
func (a *Authority) AdjustAuthority(ctx context.Context, nodeID id.FundID, delta types.Money, justification, actor string) error {
	if delta.IsZero() {
		return fmt.Errorf("%w: zero adjustment", ErrInvalidInput)
	}

	n, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if a.engine.IsTerminal(n) {
		return fmt.Errorf("%w: node %s is %s", ErrNodeTerminal, n.ID, n.Status)
	}

	res, err := compliance.ValidateAdjustment(ctx, a.store, n.ID, delta)
	if err != nil {
		return err
	}
	if !res.Valid {
		return a.rejectCompliance(ctx, res)
	}

	cs := &store.ChangeSet{CommandID: id.NewCommandID()}

	if delta.IsPositive() && !n.IsRoot() {
		// An increase consumes parent headroom; bump the parent's version
		// so competing sibling demand serializes.
		parent, err := a.store.GetNode(ctx, n.ParentID)
		if err != nil {
			return err
		}
		touch(cs, parent)
	}

	n.TotalAuthority = n.TotalAuthority.Add(delta)

	action := audit.ActionAuthorityIncreased
	if delta.IsNegative() {
		action = audit.ActionAuthorityDecreased
	}

	cs.Updates = append(cs.Updates, store.NodeWrite{Node: n, ExpectedVersion: n.Version})
	cs.Events = append(cs.Events, audit.New(n.ID, actor, action,
		fmt.Sprintf("%s to %s: %s", delta, n.TotalAuthority, justification)))

	if err := a.commit(ctx, cs); err != nil {
		return err
	}

	a.plugins.EmitAuthorityAdjusted(ctx, n, delta)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// newObligation builds an Obligated general-ledger entry of amount under
// the given funding node.
func newObligation(target *fund.Node, amount types.Money) *fund.Node {
	return &fund.Node{
		Entity:          types.NewEntity(),
		ID:              id.NewObligationID(),
		ParentID:        target.ID,
		DocType:         fund.DocObligation,
		Title:           fmt.Sprintf("Obligation against %s", target.Title),
		Status:          fund.StatusObligated,
		TotalAuthority:  amount,
		ObligatedAmount: amount,
		DisbursedAmount: types.Zero(amount.Currency),
	}
}

// touch adds a no-op versioned write for a node whose headroom the command
// consulted, forcing concurrent commands over the same headroom into
// commit-time conflict instead of letting both pass validation.
func touch(cs *store.ChangeSet, n *fund.Node) {
	cs.Updates = append(cs.Updates, store.NodeWrite{Node: n, ExpectedVersion: n.Version})
}

// commit applies a change set atomically and reports failures to plugins.
func (a *Authority) commit(ctx context.Context, cs *store.ChangeSet) error {
	if err := a.store.Commit(ctx, cs); err != nil {
		a.plugins.EmitCommandFailed(ctx, cs.CommandID, err)
		a.logger.Warn("command rejected",
			"command_id", cs.CommandID,
			"error", err,
		)
		return err
	}

	a.logger.Debug("command committed",
		"command_id", cs.CommandID,
		"creates", len(cs.Creates),
		"updates", len(cs.Updates),
	)
	return nil
}

// rejectCompliance notifies plugins of a validator rejection and returns
// the typed error. Nothing has been written when this is called.
func (a *Authority) rejectCompliance(ctx context.Context, res *compliance.Result) error {
	a.plugins.EmitComplianceRejected(ctx, res)
	a.logger.Warn("compliance rejection",
		"node_id", res.NodeID,
		"requested", res.Requested,
		"available", res.Available,
		"shortfall", res.Shortfall,
	)
	return res.Err()
}
