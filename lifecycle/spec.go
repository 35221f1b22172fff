// Package lifecycle provides the generic guarded state machine that drives
// every funding document's status changes. Each document type declares its
// legal states and transitions once, in a Spec table, so the full transition
// surface is exhaustively checkable in one place.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/policy"
	"github.com/fedledger/authority/types"
)

// Sentinel errors for lifecycle failures.
var (
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")
	ErrGuardFailed       = errors.New("lifecycle: transition guard failed")
	ErrUnknownDocType    = errors.New("lifecycle: no spec for document type")
)

// TransitionError reports a lifecycle event that is not legal from the
// entity's current state. Surfaced verbatim to the caller.
type TransitionError struct {
	NodeID  id.FundID
	DocType fund.DocType
	From    fund.Status
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf(
		"lifecycle: %s %s cannot accept event %q in state %q",
		e.DocType, e.NodeID, e.Event, e.From,
	)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GuardError reports a domain precondition that was not met, such as a
// missing required reference document or an oversized reduction.
type GuardError struct {
	NodeID id.FundID
	Event  Event
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("lifecycle: guard failed for event %q on %s: %s", e.Event, e.NodeID, e.Reason)
}

// Unwrap allows errors.Is(err, ErrGuardFailed).
func (e *GuardError) Unwrap() error { return ErrGuardFailed }

// Event is a lifecycle event name.
type Event string

const (
	EventApprove  Event = "Approve"
	EventReject   Event = "Reject"
	EventReduce   Event = "Reduce"
	EventClose    Event = "Close"
	EventIssue    Event = "Issue"
	EventAccept   Event = "Accept"
	EventStart    Event = "Start"
	EventComplete Event = "Complete"
	EventCancel   Event = "Cancel"
	EventAdvance  Event = "Advance"
	EventDeny     Event = "Deny"
	EventPay      Event = "Pay"
	EventBlock    Event = "Block"
	EventVerify   Event = "Verify"
	EventAward    Event = "Award"
	EventOverride Event = "Override"
)

// Payload carries the caller-supplied input for a transition.
type Payload struct {
	Actor          string
	Justification  string
	Amount         types.Money // reduction amount for EventReduce
	OverrideStatus fund.Status // target state for EventOverride
}

// Effect identifies a derived mutation the orchestrator must apply together
// with the state change. A transition with effects is not complete until
// every effect also commits.
type Effect string

const (
	// EffectEmitObligation creates a general-ledger obligation of the node's
	// total amount against its linked funding node.
	EffectEmitObligation Effect = "emit_obligation"
	// EffectEmitExpense creates a disbursement expense equal to the node's
	// committed amount, tied to the node.
	EffectEmitExpense Effect = "emit_expense"
	// EffectEmitContract creates a contract record for an awarded requisition.
	EffectEmitContract Effect = "emit_contract"
	// EffectCommitFull sets the node's obligated amount to its total
	// authority (a benefit approval commits the full benefit amount).
	EffectCommitFull Effect = "commit_full"
	// EffectReduceAuthority decreases the node's total authority by the
	// payload amount.
	EffectReduceAuthority Effect = "reduce_authority"
)

// Guard is a domain precondition evaluated after the structural check and
// before any mutation.
type Guard func(n *fund.Node, p Payload) error

// Transition declares one legal (state, event) edge.
type Transition struct {
	Next fund.Status
	// NextFunc, when set, computes the resulting state from the node,
	// payload, and engine policy. Used where the target state is
	// policy-dependent (allowance reduction closure).
	NextFunc func(n *fund.Node, p Payload, pol policy.Policy) fund.Status
	Guard    Guard
	Effects  []Effect
}

// Spec is the static transition table for one document type.
type Spec struct {
	DocType       fund.DocType
	Initial       fund.Status
	Terminal      map[fund.Status]bool
	Transitions   map[fund.Status]map[Event]Transition
	AllowOverride bool // free-form status override (encroachment tasks only)
	States        []fund.Status
}

// IsTerminal reports whether the state accepts no further events.
func (s *Spec) IsTerminal(st fund.Status) bool { return s.Terminal[st] }

// HasState reports whether st is one of the spec's declared states.
func (s *Spec) HasState(st fund.Status) bool {
	for _, known := range s.States {
		if known == st {
			return true
		}
	}
	return false
}

// Resolve looks up the transition for (from, event).
func (s *Spec) Resolve(from fund.Status, ev Event) (Transition, bool) {
	events, ok := s.Transitions[from]
	if !ok {
		return Transition{}, false
	}
	tr, ok := events[ev]
	return tr, ok
}
