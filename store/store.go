// Package store defines the unified storage contract for the authority
// engine. The ledger store is the sole owner of node identity and life-span;
// every other component operates on borrowed snapshots for the duration of
// one command.
package store

import (
	"context"
	"errors"

	"github.com/fedledger/authority/audit"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/snapshot"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNodeNotFound           = errors.New("store: funding node not found")
	ErrAlreadyExists          = errors.New("store: entity already exists")
	ErrConcurrentModification = errors.New("store: concurrent modification, retry the command")
	ErrClosed                 = errors.New("store: closed")
	ErrSnapshotNotFound       = errors.New("store: snapshot not found")
)

// NodeWrite is one optimistically-versioned node update inside a change
// set. ExpectedVersion is the version the command read during its validate
// phase; the commit fails if the stored version has moved since.
type NodeWrite struct {
	Node            *fund.Node
	ExpectedVersion uint64
}

// ChangeSet is the unit of atomic commit: the source transition, every
// derived emission, any generated snapshot record, and one audit event per
// mutated entity, applied together or not at all.
type ChangeSet struct {
	CommandID id.CommandID
	Creates   []*fund.Node
	Updates   []NodeWrite
	Events    []*audit.Event
	Snapshots []*snapshot.Record
}

// Empty reports whether the change set carries no mutations.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Creates) == 0 && len(cs.Updates) == 0 &&
		len(cs.Events) == 0 && len(cs.Snapshots) == 0
}

// Store is the unified storage interface. Reads return borrowed clones;
// the only write path is Commit, which holds exclusive access to exactly
// the entities named in the change set.
type Store interface {
	// Node reads
	GetNode(ctx context.Context, nodeID id.FundID) (*fund.Node, error)
	Children(ctx context.Context, parentID id.FundID) ([]*fund.Node, error)
	ListNodes(ctx context.Context, opts fund.ListOpts) ([]*fund.Node, error)

	// Atomic commit with optimistic version checks. On any version
	// mismatch the whole change set is rejected with
	// ErrConcurrentModification and nothing is applied.
	Commit(ctx context.Context, cs *ChangeSet) error

	// Audit ledger: append-only, exposed in append order.
	History(ctx context.Context, entityID id.ID) ([]*audit.Event, error)

	// Snapshot history: append-only, written through Commit.
	GetSnapshot(ctx context.Context, snapID id.SnapshotID) (*snapshot.Record, error)
	ListSnapshots(ctx context.Context, reportType string) ([]*snapshot.Metadata, error)

	// Core methods
	Ping(ctx context.Context) error
	Close() error
}
