// Package audit defines the append-only audit ledger event model.
package audit

import (
	"time"

	"github.com/fedledger/authority/id"
)

// Event is an immutable record of who did what to an entity and when.
// Ordering is append order: Seq is assigned by the store at commit time and
// breaks ties when wall clocks skew. No update or delete operation exists;
// removing a record means appending a terminal marker event instead.
type Event struct {
	ID        id.AuditEventID   `json:"id"`
	EntityID  id.ID             `json:"entity_id"`
	Seq       uint64            `json:"seq"` // 1-based append sequence per entity
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Details   string            `json:"details,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Actions recorded outside lifecycle transitions. Transition events use the
// resulting state name as the action.
const (
	ActionCreated            = "created"
	ActionAuthorityIncreased = "authority.increased"
	ActionAuthorityDecreased = "authority.decreased"
	ActionObligationPosted   = "obligation.posted"
	ActionDisbursementPosted = "disbursement.posted"
	ActionContractAwarded    = "contract.awarded"
	ActionCapitalized        = "capitalization.posted"
	ActionSnapshotGenerated  = "snapshot.generated"
	ActionRemovedMarker      = "removed"
)

// New builds an event stamped with the current time. Seq is assigned by the
// store when the event is committed.
func New(entityID id.ID, actor, action, details string) *Event {
	return &Event{
		ID:        id.NewAuditEventID(),
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Details:   details,
	}
}

// MostRecentFirst returns a reversed copy for display. The input, which is
// in append order, is not modified.
func MostRecentFirst(events []*Event) []*Event {
	out := make([]*Event, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}
