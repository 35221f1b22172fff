// Package compliance implements the funds availability validator: the single
// shared contract every call site uses to answer "does this commitment fit
// within remaining authority". The check is a pure function over a
// consistent read snapshot of the ledger; it never mutates anything.
package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/types"
)

// Sentinel errors for compliance failures.
var (
	ErrAntiDeficiency    = errors.New("compliance: anti-deficiency violation")
	ErrOverDisbursement  = errors.New("compliance: disbursement exceeds obligated amount")
	ErrReductionTooLarge = errors.New("compliance: reduction below committed amount")
)

// ComplianceError reports a proposed commitment that does not fit within the
// remaining authority of a funding node. Always recoverable by the caller
// adjusting amounts or choosing a different funding node; the validator
// never clamps.
type ComplianceError struct {
	NodeID    id.FundID
	Requested types.Money
	Available types.Money
	Shortfall types.Money
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf(
		"compliance: anti-deficiency violation on node %s: requested %s exceeds available %s by %s",
		e.NodeID, e.Requested, e.Available, e.Shortfall,
	)
}

// Unwrap allows errors.Is(err, ErrAntiDeficiency).
func (e *ComplianceError) Unwrap() error { return ErrAntiDeficiency }

// Result is the outcome of a funds availability check.
type Result struct {
	Valid     bool        `json:"valid"`
	NodeID    id.FundID   `json:"node_id"`
	Requested types.Money `json:"requested"`
	Available types.Money `json:"available"`
	Shortfall types.Money `json:"shortfall"`
	Message   string      `json:"message"`
}

// Err returns nil for a valid result, or the typed compliance error.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ComplianceError{
		NodeID:    r.NodeID,
		Requested: r.Requested,
		Available: r.Available,
		Shortfall: r.Shortfall,
	}
}

// View is the read-only ledger snapshot the validator operates on.
type View interface {
	GetNode(ctx context.Context, nodeID id.FundID) (*fund.Node, error)
	Children(ctx context.Context, parentID id.FundID) ([]*fund.Node, error)
}

// Distributed sums the authority carved out by a node's non-released
// children. Children in Rejected, Canceled, or Denied states no longer
// count against the parent.
func Distributed(ctx context.Context, view View, node *fund.Node) (types.Money, error) {
	children, err := view.Children(ctx, node.ID)
	if err != nil {
		return types.ZeroUSD(), err
	}

	total := types.Zero(node.TotalAuthority.Currency)
	for _, child := range children {
		if fund.ReleasesAuthority(child.Status) {
			continue
		}
		total = total.Add(child.DistributedAmount())
	}
	return total, nil
}

// Validate computes whether a proposed signed delta fits within the
// remaining authority of the target node. A positive delta is a new
// commitment; a negative delta is a release of funds and is always valid.
//
// Allowance-style nodes measure availability as total authority minus the
// sum of non-released child distributions. Obligation nodes have no
// children; their availability is the unliquidated balance of their own
// committed amount.
func Validate(ctx context.Context, view View, nodeID id.FundID, delta types.Money) (*Result, error) {
	node, err := view.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if !delta.IsPositive() {
		return &Result{
			Valid:     true,
			NodeID:    nodeID,
			Requested: delta,
			Message:   fmt.Sprintf("release of %s against node %s", delta.Abs(), nodeID),
		}, nil
	}

	var available types.Money
	if node.DocType == fund.DocObligation {
		available = node.UnliquidatedAmount()
	} else {
		distributed, err := Distributed(ctx, view, node)
		if err != nil {
			return nil, err
		}
		available = node.TotalAuthority.Subtract(distributed)
	}

	if delta.GreaterThan(available) {
		shortfall := delta.Subtract(available)
		return &Result{
			Valid:     false,
			NodeID:    nodeID,
			Requested: delta,
			Available: available,
			Shortfall: shortfall,
			Message: fmt.Sprintf(
				"anti-deficiency: node %s has %s available, commitment of %s falls short by %s",
				nodeID, available, delta, shortfall,
			),
		}, nil
	}

	return &Result{
		Valid:     true,
		NodeID:    nodeID,
		Requested: delta,
		Available: available,
		Message:   fmt.Sprintf("%s available on node %s after commitment of %s", available.Subtract(delta), nodeID, delta),
	}, nil
}

// ValidateAdjustment checks an authority increase or decrease on a node.
//
// An increase grows the node's carve-out of its immediate parent, so it is
// validated against the parent's remaining headroom. Nothing above the
// parent changes: the parent's own authority stays fixed, so ancestors see
// no new demand. A decrease must not drop the node's authority below what
// its children have already been distributed or what the node itself has
// obligated — a reduction that would retroactively break descendants is
// rejected, never silently applied (fail-closed).
func ValidateAdjustment(ctx context.Context, view View, nodeID id.FundID, delta types.Money) (*Result, error) {
	node, err := view.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if delta.IsPositive() {
		if node.IsRoot() {
			return &Result{
				Valid:     true,
				NodeID:    nodeID,
				Requested: delta,
				Message:   fmt.Sprintf("increase of %s on root node %s", delta, nodeID),
			}, nil
		}
		return Validate(ctx, view, node.ParentID, delta)
	}

	newAuthority := node.TotalAuthority.Add(delta)
	distributed, err := Distributed(ctx, view, node)
	if err != nil {
		return nil, err
	}
	floor := distributed.Max(node.ObligatedAmount)

	if newAuthority.LessThan(floor) {
		shortfall := floor.Subtract(newAuthority)
		return &Result{
			Valid:     false,
			NodeID:    nodeID,
			Requested: delta,
			Available: node.TotalAuthority.Subtract(floor),
			Shortfall: shortfall,
			Message: fmt.Sprintf(
				"reduction of %s on node %s would fall %s below the %s already committed",
				delta.Abs(), nodeID, shortfall, floor,
			),
		}, nil
	}

	return &Result{
		Valid:     true,
		NodeID:    nodeID,
		Requested: delta,
		Message:   fmt.Sprintf("authority on node %s reduced to %s", nodeID, newAuthority),
	}, nil
}

// ValidateDisbursement checks that a disbursement keeps disbursed within
// the obligated amount of a transaction-like node.
func ValidateDisbursement(node *fund.Node, amount types.Money) error {
	newDisbursed := node.DisbursedAmount.Add(amount)
	if newDisbursed.GreaterThan(node.TotalAuthority) {
		return fmt.Errorf("%w: node %s disbursed %s + %s exceeds committed %s",
			ErrOverDisbursement, node.ID, node.DisbursedAmount, amount, node.TotalAuthority)
	}
	return nil
}
