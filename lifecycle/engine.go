package lifecycle

import (
	"fmt"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/policy"
)

// Outcome is the result of evaluating a transition. The engine itself never
// mutates state; the orchestrator applies the outcome and its effects as one
// atomic commit, or not at all.
type Outcome struct {
	Next    fund.Status
	Effects []Effect
}

// Engine evaluates lifecycle events against per-document-type spec tables.
type Engine struct {
	specs map[fund.DocType]*Spec
	pol   policy.Policy
}

// NewEngine creates an engine with the builtin specs registered.
func NewEngine(pol policy.Policy) *Engine {
	e := &Engine{
		specs: make(map[fund.DocType]*Spec),
		pol:   pol,
	}
	for _, s := range BuiltinSpecs() {
		e.specs[s.DocType] = s
	}
	return e
}

// Register adds or replaces the spec for a document type.
func (e *Engine) Register(s *Spec) {
	e.specs[s.DocType] = s
}

// SpecFor returns the transition table for a document type.
func (e *Engine) SpecFor(dt fund.DocType) (*Spec, error) {
	s, ok := e.specs[dt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocType, dt)
	}
	return s, nil
}

// Initial returns the creation state for a document type.
func (e *Engine) Initial(dt fund.DocType) (fund.Status, error) {
	s, err := e.SpecFor(dt)
	if err != nil {
		return "", err
	}
	return s.Initial, nil
}

// IsTerminal reports whether the node's current state accepts no further
// events.
func (e *Engine) IsTerminal(n *fund.Node) bool {
	s, ok := e.specs[n.DocType]
	return ok && s.IsTerminal(n.Status)
}

// Eval checks an event against the node's spec table. Guard evaluation
// order: first the structural check (is the event legal from the current
// state), then the domain guard. Only when both pass does Eval return an
// outcome for the orchestrator to commit.
func (e *Engine) Eval(n *fund.Node, ev Event, p Payload) (*Outcome, error) {
	spec, err := e.SpecFor(n.DocType)
	if err != nil {
		return nil, err
	}

	if ev == EventOverride {
		return e.evalOverride(spec, n, p)
	}

	tr, ok := spec.Resolve(n.Status, ev)
	if !ok {
		return nil, &TransitionError{NodeID: n.ID, DocType: n.DocType, From: n.Status, Event: ev}
	}

	if tr.Guard != nil {
		if err := tr.Guard(n, p); err != nil {
			return nil, err
		}
	}

	next := tr.Next
	if tr.NextFunc != nil {
		next = tr.NextFunc(n, p, e.pol)
	}

	return &Outcome{Next: next, Effects: tr.Effects}, nil
}

// evalOverride handles the free-form status override permitted for
// encroachment tasks. The override bypasses the edge table but not the
// audit trail, and it cannot resurrect a terminal entity or invent a state
// the spec does not declare.
func (e *Engine) evalOverride(spec *Spec, n *fund.Node, p Payload) (*Outcome, error) {
	if !spec.AllowOverride || !e.pol.AllowStatusOverride {
		return nil, &TransitionError{NodeID: n.ID, DocType: n.DocType, From: n.Status, Event: EventOverride}
	}
	if spec.IsTerminal(n.Status) {
		return nil, &TransitionError{NodeID: n.ID, DocType: n.DocType, From: n.Status, Event: EventOverride}
	}
	if p.OverrideStatus == "" || !spec.HasState(p.OverrideStatus) {
		return nil, &GuardError{
			NodeID: n.ID,
			Event:  EventOverride,
			Reason: fmt.Sprintf("unknown override state %q", p.OverrideStatus),
		}
	}
	return &Outcome{Next: p.OverrideStatus}, nil
}
