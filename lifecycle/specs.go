package lifecycle

import (
	"fmt"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/policy"
)

// guardReduction rejects a reduction larger than the authority not yet
// obligated. Reducing below committed obligations is never clamped.
func guardReduction(n *fund.Node, p Payload) error {
	if !p.Amount.IsPositive() {
		return &GuardError{NodeID: n.ID, Event: EventReduce, Reason: "reduction amount must be positive"}
	}
	reducible := n.TotalAuthority.Subtract(n.ObligatedAmount)
	if p.Amount.GreaterThan(reducible) {
		return &GuardError{
			NodeID: n.ID,
			Event:  EventReduce,
			Reason: fmt.Sprintf("reduction %s exceeds reducible balance %s (authority %s, obligated %s)",
				p.Amount, reducible, n.TotalAuthority, n.ObligatedAmount),
		}
	}
	return nil
}

// guardAcceptance requires a GT&C reference and a linked funding node before
// an order can be accepted.
func guardAcceptance(n *fund.Node, _ Payload) error {
	if n.GTCRef == "" {
		return &GuardError{NodeID: n.ID, Event: EventAccept, Reason: "GT&C reference required"}
	}
	if n.LinkedFundID.IsNil() {
		return &GuardError{NodeID: n.ID, Event: EventAccept, Reason: "no linked funding node"}
	}
	return nil
}

// reduceNext computes the state after an allowance reduction. When the
// remaining authority equals the obligated amount the allowance has nothing
// left to give and, under the default policy, closes.
func reduceNext(n *fund.Node, p Payload, pol policy.Policy) fund.Status {
	remaining := n.TotalAuthority.Subtract(p.Amount)
	if pol.AllowanceAutoClose && remaining.Equal(n.ObligatedAmount) {
		return fund.StatusClosed
	}
	return fund.StatusReduced
}

// WorkAllowanceSpec: PendingApproval → {Active, Rejected};
// Active/Reduced → Reduced (guarded) → Closed.
func WorkAllowanceSpec() *Spec {
	return &Spec{
		DocType: fund.DocAllowance,
		Initial: fund.StatusPendingApproval,
		States: []fund.Status{
			fund.StatusPendingApproval, fund.StatusActive, fund.StatusReduced,
			fund.StatusClosed, fund.StatusRejected,
		},
		Terminal: map[fund.Status]bool{
			fund.StatusRejected: true,
			fund.StatusClosed:   true,
		},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusPendingApproval: {
				EventApprove: {Next: fund.StatusActive},
				EventReject:  {Next: fund.StatusRejected},
			},
			fund.StatusActive: {
				EventReduce: {NextFunc: reduceNext, Guard: guardReduction, Effects: []Effect{EffectReduceAuthority}},
				EventClose:  {Next: fund.StatusClosed},
			},
			fund.StatusReduced: {
				EventReduce: {NextFunc: reduceNext, Guard: guardReduction, Effects: []Effect{EffectReduceAuthority}},
				EventClose:  {Next: fund.StatusClosed},
			},
		},
	}
}

// ProjectOrderSpec: Draft → Issued → Accepted → WorkInProgress → Completed,
// strictly sequential; Canceled reachable from any non-terminal state.
// Acceptance requires a GT&C reference and emits an obligation of the
// order's total amount against the linked funding node.
func ProjectOrderSpec() *Spec {
	return &Spec{
		DocType: fund.DocProjectOrder,
		Initial: fund.StatusDraft,
		States: []fund.Status{
			fund.StatusDraft, fund.StatusIssued, fund.StatusAccepted,
			fund.StatusWorkInProgress, fund.StatusCompleted, fund.StatusCanceled,
		},
		Terminal: map[fund.Status]bool{
			fund.StatusCompleted: true,
			fund.StatusCanceled:  true,
		},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusDraft: {
				EventIssue:  {Next: fund.StatusIssued},
				EventCancel: {Next: fund.StatusCanceled},
			},
			fund.StatusIssued: {
				EventAccept: {Next: fund.StatusAccepted, Guard: guardAcceptance, Effects: []Effect{EffectEmitObligation}},
				EventCancel: {Next: fund.StatusCanceled},
			},
			fund.StatusAccepted: {
				EventStart:  {Next: fund.StatusWorkInProgress},
				EventCancel: {Next: fund.StatusCanceled},
			},
			fund.StatusWorkInProgress: {
				EventComplete: {Next: fund.StatusCompleted},
				EventCancel:   {Next: fund.StatusCanceled},
			},
		},
	}
}

// DisposalScreeningSpec: Submitted → DoDScreening → FederalScreening →
// HomelessScreening → Final, one stage per Advance call, no stage skipped
// or revisited.
func DisposalScreeningSpec() *Spec {
	return &Spec{
		DocType: fund.DocDisposal,
		Initial: fund.StatusSubmitted,
		States: []fund.Status{
			fund.StatusSubmitted, fund.StatusDoDScreening, fund.StatusFederalScreening,
			fund.StatusHomelessScreening, fund.StatusFinal,
		},
		Terminal: map[fund.Status]bool{fund.StatusFinal: true},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusSubmitted: {
				EventAdvance: {Next: fund.StatusDoDScreening},
			},
			fund.StatusDoDScreening: {
				EventAdvance: {Next: fund.StatusFederalScreening},
			},
			fund.StatusFederalScreening: {
				EventAdvance: {Next: fund.StatusHomelessScreening},
			},
			fund.StatusHomelessScreening: {
				EventAdvance: {Next: fund.StatusFinal},
			},
		},
	}
}

// BenefitSpec: Pending → {Approved, Denied}; Approved → Paid.
// Approval commits the full benefit amount; payment emits a disbursement
// expense equal to it.
func BenefitSpec() *Spec {
	return &Spec{
		DocType: fund.DocBenefit,
		Initial: fund.StatusPending,
		States: []fund.Status{
			fund.StatusPending, fund.StatusApproved, fund.StatusDenied, fund.StatusPaid,
		},
		Terminal: map[fund.Status]bool{
			fund.StatusDenied: true,
			fund.StatusPaid:   true,
		},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusPending: {
				EventApprove: {Next: fund.StatusApproved, Effects: []Effect{EffectCommitFull}},
				EventDeny:    {Next: fund.StatusDenied},
			},
			fund.StatusApproved: {
				EventPay: {Next: fund.StatusPaid, Effects: []Effect{EffectEmitExpense}},
			},
		},
	}
}

// EncroachmentTaskSpec: Assigned → InProgress → {Completed, Blocked} →
// Verified → Closed. Free-form overrides are permitted only through the
// Override event, which still appends an audit event.
func EncroachmentTaskSpec() *Spec {
	return &Spec{
		DocType:       fund.DocEncroachment,
		Initial:       fund.StatusAssigned,
		AllowOverride: true,
		States: []fund.Status{
			fund.StatusAssigned, fund.StatusInProgress, fund.StatusCompleted,
			fund.StatusBlocked, fund.StatusVerified, fund.StatusClosed,
		},
		Terminal: map[fund.Status]bool{fund.StatusClosed: true},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusAssigned: {
				EventStart: {Next: fund.StatusInProgress},
			},
			fund.StatusInProgress: {
				EventComplete: {Next: fund.StatusCompleted},
				EventBlock:    {Next: fund.StatusBlocked},
			},
			fund.StatusCompleted: {
				EventVerify: {Next: fund.StatusVerified},
			},
			fund.StatusBlocked: {
				EventVerify: {Next: fund.StatusVerified},
			},
			fund.StatusVerified: {
				EventClose: {Next: fund.StatusClosed},
			},
		},
	}
}

// RequisitionSpec: Open → Awarded. Awarding emits a contract record.
func RequisitionSpec() *Spec {
	return &Spec{
		DocType: fund.DocRequisition,
		Initial: fund.StatusOpen,
		States:  []fund.Status{fund.StatusOpen, fund.StatusAwarded, fund.StatusCanceled},
		Terminal: map[fund.Status]bool{
			fund.StatusAwarded:  true,
			fund.StatusCanceled: true,
		},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusOpen: {
				EventAward:  {Next: fund.StatusAwarded, Effects: []Effect{EffectEmitContract}},
				EventCancel: {Next: fund.StatusCanceled},
			},
		},
	}
}

// AppropriationSpec: root authority documents are Active until closed.
func AppropriationSpec() *Spec {
	return &Spec{
		DocType:  fund.DocAppropriation,
		Initial:  fund.StatusActive,
		States:   []fund.Status{fund.StatusActive, fund.StatusClosed},
		Terminal: map[fund.Status]bool{fund.StatusClosed: true},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusActive: {
				EventClose: {Next: fund.StatusClosed},
			},
		},
	}
}

// ObligationSpec: Obligated until fully liquidated or canceled. Liquidation
// is driven by the disbursement path once disbursed equals the obligated
// amount.
func ObligationSpec() *Spec {
	return &Spec{
		DocType: fund.DocObligation,
		Initial: fund.StatusObligated,
		States:  []fund.Status{fund.StatusObligated, fund.StatusLiquidated, fund.StatusCanceled},
		Terminal: map[fund.Status]bool{
			fund.StatusLiquidated: true,
			fund.StatusCanceled:   true,
		},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusObligated: {
				EventComplete: {Next: fund.StatusLiquidated, Guard: guardFullyDisbursed},
				EventCancel:   {Next: fund.StatusCanceled},
			},
		},
	}
}

// guardFullyDisbursed only lets an obligation liquidate once disbursements
// cover the full committed amount.
func guardFullyDisbursed(n *fund.Node, _ Payload) error {
	if !n.DisbursedAmount.Equal(n.TotalAuthority) {
		return &GuardError{
			NodeID: n.ID,
			Event:  EventComplete,
			Reason: fmt.Sprintf("unliquidated balance %s remains", n.UnliquidatedAmount()),
		}
	}
	return nil
}

// AssetSpec: real-property asset records are Active until disposed.
func AssetSpec() *Spec {
	return &Spec{
		DocType:  fund.DocAsset,
		Initial:  fund.StatusActive,
		States:   []fund.Status{fund.StatusActive, fund.StatusClosed},
		Terminal: map[fund.Status]bool{fund.StatusClosed: true},
		Transitions: map[fund.Status]map[Event]Transition{
			fund.StatusActive: {
				EventClose: {Next: fund.StatusClosed},
			},
		},
	}
}

// recordSpec covers pure ledger records (expenses, contracts,
// capitalization entries): created Posted, no further transitions.
func recordSpec(dt fund.DocType) *Spec {
	return &Spec{
		DocType:     dt,
		Initial:     fund.StatusPosted,
		States:      []fund.Status{fund.StatusPosted},
		Terminal:    map[fund.Status]bool{fund.StatusPosted: true},
		Transitions: map[fund.Status]map[Event]Transition{},
	}
}

// BuiltinSpecs returns the transition tables for every known document type.
func BuiltinSpecs() []*Spec {
	return []*Spec{
		AppropriationSpec(),
		WorkAllowanceSpec(),
		ProjectOrderSpec(),
		DisposalScreeningSpec(),
		BenefitSpec(),
		EncroachmentTaskSpec(),
		RequisitionSpec(),
		ObligationSpec(),
		AssetSpec(),
		recordSpec(fund.DocExpense),
		recordSpec(fund.DocContract),
		recordSpec(fund.DocCapitalization),
	}
}
