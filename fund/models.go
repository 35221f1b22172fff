// Package fund defines the funding node model: every document that holds or
// consumes budget authority is a node in a parent/child authority tree.
package fund

import (
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/types"
)

// DocType identifies the kind of funding document a node represents.
type DocType string

const (
	DocAppropriation  DocType = "appropriation"  // Root authority document
	DocAllowance      DocType = "allowance"      // Work allowance under an appropriation
	DocProjectOrder   DocType = "project_order"  // Project/task order
	DocObligation     DocType = "obligation"     // General-ledger obligation
	DocExpense        DocType = "expense"        // Disbursement expense
	DocRequisition    DocType = "requisition"    // Solicitation/requisition
	DocContract       DocType = "contract"       // Contract record emitted on award
	DocBenefit        DocType = "benefit"        // Relocation benefit/entitlement case
	DocDisposal       DocType = "disposal"       // Disposal action screening
	DocEncroachment   DocType = "encroachment"   // Encroachment task under a parent case
	DocAsset          DocType = "asset"          // Real-property asset record
	DocCapitalization DocType = "capitalization" // Capitalization entry for an asset
)

// Status is a lifecycle state name. The legal values and transitions for each
// document type are declared once, in the lifecycle package's spec tables.
type Status string

const (
	// Work allowance states
	StatusPendingApproval Status = "PendingApproval"
	StatusActive          Status = "Active"
	StatusReduced         Status = "Reduced"
	StatusClosed          Status = "Closed"
	StatusRejected        Status = "Rejected"

	// Project/task order states
	StatusDraft          Status = "Draft"
	StatusIssued         Status = "Issued"
	StatusAccepted       Status = "Accepted"
	StatusWorkInProgress Status = "WorkInProgress"
	StatusCompleted      Status = "Completed"
	StatusCanceled       Status = "Canceled"

	// Disposal action screening states
	StatusSubmitted         Status = "Submitted"
	StatusDoDScreening      Status = "DoDScreening"
	StatusFederalScreening  Status = "FederalScreening"
	StatusHomelessScreening Status = "HomelessScreening"
	StatusFinal             Status = "Final"

	// Benefit/entitlement states
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusDenied   Status = "Denied"
	StatusPaid     Status = "Paid"

	// Encroachment task states
	StatusAssigned   Status = "Assigned"
	StatusInProgress Status = "InProgress"
	StatusBlocked    Status = "Blocked"
	StatusVerified   Status = "Verified"

	// Requisition states
	StatusOpen    Status = "Open"
	StatusAwarded Status = "Awarded"

	// Ledger record states (obligations, expenses, contracts, entries)
	StatusObligated  Status = "Obligated"
	StatusLiquidated Status = "Liquidated"
	StatusPosted     Status = "Posted"
)

// Node is any document that holds or consumes budget authority. A node is
// created in its document type's initial state with zero obligated and
// disbursed amounts, mutated only through guarded lifecycle transitions or
// audited authority adjustments, and never deleted — cancellation and
// rejection are terminal states, so history stays queryable.
type Node struct {
	types.Entity
	ID       id.FundID `json:"id"`
	ParentID id.FundID `json:"parent_id,omitempty"` // Nil only for appropriation roots
	DocType  DocType   `json:"doc_type"`
	Title    string    `json:"title"`
	Status   Status    `json:"status"`

	// TotalAuthority is set at creation and mutable only via an explicit,
	// audited increase/decrease operation. For transaction-like nodes
	// (obligations, expenses, benefits) it is the committed amount.
	TotalAuthority  types.Money `json:"total_authority"`
	ObligatedAmount types.Money `json:"obligated_amount"`
	DisbursedAmount types.Money `json:"disbursed_amount"`

	// Transaction specialization: the document that emitted this node.
	SourceDocType DocType `json:"source_doc_type,omitempty"`
	SourceDocID   id.ID   `json:"source_doc_id,omitempty"`

	// Project orders: the funding node obligated when the order is accepted,
	// and the GT&C reference required by the acceptance guard.
	LinkedFundID id.FundID `json:"linked_fund_id,omitempty"`
	GTCRef       string    `json:"gtc_ref,omitempty"`

	// Version is the optimistic concurrency token. Every committed mutation
	// increments it; a command whose expected version no longer matches
	// fails with a retryable conflict.
	Version uint64 `json:"version"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsRoot reports whether this node is a root appropriation document.
func (n *Node) IsRoot() bool { return n.ParentID.IsNil() }

// Available returns the authority not yet obligated on this node.
func (n *Node) Available() types.Money {
	return n.TotalAuthority.Subtract(n.ObligatedAmount)
}

// UnliquidatedAmount returns the committed amount not yet disbursed.
// Always derived, never stored.
func (n *Node) UnliquidatedAmount() types.Money {
	return n.TotalAuthority.Subtract(n.DisbursedAmount)
}

// DistributedAmount returns the demand this node places on its parent's
// authority: its own total authority.
func (n *Node) DistributedAmount() types.Money { return n.TotalAuthority }

// Clone returns a deep copy. The store hands out clones so callers operate
// on borrowed snapshots, never on shared state.
func (n *Node) Clone() *Node {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ReleasesAuthority reports whether a node in the given status no longer
// counts against its parent's distributed total. Anti-deficiency sums skip
// these children.
func ReleasesAuthority(s Status) bool {
	switch s {
	case StatusRejected, StatusCanceled, StatusDenied:
		return true
	default:
		return false
	}
}

// ListOpts filters node listings.
type ListOpts struct {
	DocType  DocType
	Status   Status
	ParentID id.FundID
	Limit    int
	Offset   int
}
