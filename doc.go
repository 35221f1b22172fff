// Package authority provides an embeddable budget-authority enforcement
// engine for hierarchical federal funds control.
//
// Authority is designed as a library, not a service. Import it directly into
// your Go application and drive it through commands. It provides:
//
//   - A funding hierarchy (appropriation -> allowance -> project order) with
//     strict anti-deficiency enforcement at every level
//   - Guarded lifecycle state machines for every document type, declared as
//     static transition tables
//   - Two-phase command execution: validate against a consistent read
//     snapshot, then commit atomically under optimistic versioning
//   - Cross-document orchestration (accepting an order posts the obligation
//     against its funding source in the same commit)
//   - An append-only, per-entity audit ledger
//   - Deterministic, hash-stamped reporting snapshots (CBOR + BLAKE3)
//   - Pluggable extensions for change feeds and metrics
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/fedledger/authority"
//	    "github.com/fedledger/authority/store/memory"
//	)
//
//	eng := authority.New(memory.New())
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Funding nodes carry authority. A root appropriation holds the total; child
// nodes carve distributions out of their parent:
//
//	appn, _ := eng.CreateNode(ctx, authority.NewNode{
//	    DocType:        fund.DocAppropriation,
//	    Title:          "FY26 O&M",
//	    TotalAuthority: authority.USD(10_000_000_00),
//	}, "comptroller")
//
//	allow, _ := eng.CreateNode(ctx, authority.NewNode{
//	    ParentID:       appn.ID,
//	    DocType:        fund.DocAllowance,
//	    Title:          "Facility sustainment",
//	    TotalAuthority: authority.USD(1_000_000_00),
//	}, "comptroller")
//
// Transactions obligate funds against a node, rejected with a typed
// ComplianceError when they do not fit:
//
//	oblID, err := eng.SubmitTransaction(ctx, allow.ID, authority.USD(600_000_00), "roof repair", "analyst")
//	if authority.IsCompliance(err) {
//	    // shortfall details are on the error
//	}
//
// Lifecycle events move documents through their state machines, carrying any
// derived postings in the same atomic commit:
//
//	status, err := eng.AdvanceLifecycle(ctx, orderID, lifecycle.EventAccept, lifecycle.Payload{
//	    Actor: "performer",
//	})
//
// # Concurrency
//
// Every node carries a version counter. Commands read a consistent snapshot,
// validate, and commit with compare-and-swap semantics; a losing writer gets
// ErrConcurrentModification and can retry against fresh state. The engine
// never commits a state the validator has not approved.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	fund_01h2xcejqtf2nbrexx3vqjhp41  // Funding node ID
//	obl_01h2xcejqtf2nbrexx3vqjhp41   // Obligation ID
//	snap_01h455vb4pex5vsknk084sn02q  // Snapshot ID
//
// TypeIDs are K-sortable, providing natural time-ordering of entities.
package authority
