// Package memory provides an in-memory Store for tests, demos, and
// embedding behind a persistence adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fedledger/authority/audit"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/store"
)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Node storage, keyed by ID string.
	nodes map[string]*fund.Node

	// Append-only audit logs, keyed by entity ID string.
	logs map[string][]*audit.Event

	// Append-only snapshot history, in generation order.
	snapshots []*snapshot.Record
}

func New() *Store {
	return &Store{
		nodes: make(map[string]*fund.Node),
		logs:  make(map[string][]*audit.Event),
	}
}

// GetNode returns a clone of the stored node so callers operate on a
// borrowed snapshot.
func (s *Store) GetNode(_ context.Context, nodeID id.FundID) (*fund.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	if n, ok := s.nodes[nodeID.String()]; ok {
		return n.Clone(), nil
	}
	return nil, store.ErrNodeNotFound
}

func (s *Store) Children(_ context.Context, parentID id.FundID) ([]*fund.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*fund.Node, 0)
	key := parentID.String()
	for _, n := range s.nodes {
		if !n.ParentID.IsNil() && n.ParentID.String() == key {
			result = append(result, n.Clone())
		}
	}
	return result, nil
}

func (s *Store) ListNodes(_ context.Context, opts fund.ListOpts) ([]*fund.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*fund.Node, 0)
	for _, n := range s.nodes {
		if opts.DocType != "" && n.DocType != opts.DocType {
			continue
		}
		if opts.Status != "" && n.Status != opts.Status {
			continue
		}
		if !opts.ParentID.IsNil() && n.ParentID.String() != opts.ParentID.String() {
			continue
		}
		result = append(result, n.Clone())
	}

	// Stable order before pagination: TypeIDs are K-sortable, so ID order
	// is creation order.
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Commit applies a change set atomically. All version checks run before any
// mutation, so a rejected commit leaves the store exactly as it was.
func (s *Store) Commit(_ context.Context, cs *store.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	// Verify phase: nothing below may mutate until every check passes.
	for _, n := range cs.Creates {
		if _, exists := s.nodes[n.ID.String()]; exists {
			return store.ErrAlreadyExists
		}
	}
	for _, w := range cs.Updates {
		current, exists := s.nodes[w.Node.ID.String()]
		if !exists {
			return store.ErrNodeNotFound
		}
		if current.Version != w.ExpectedVersion {
			return store.ErrConcurrentModification
		}
	}

	// Apply phase.
	for _, n := range cs.Creates {
		stored := n.Clone()
		stored.Version = 1
		s.nodes[stored.ID.String()] = stored
	}
	for _, w := range cs.Updates {
		stored := w.Node.Clone()
		stored.Version = w.ExpectedVersion + 1
		stored.Touch()
		s.nodes[stored.ID.String()] = stored
	}
	for _, e := range cs.Events {
		evt := *e
		key := evt.EntityID.String()
		evt.Seq = uint64(len(s.logs[key]) + 1)
		if evt.ID.IsNil() {
			evt.ID = id.NewAuditEventID()
		}
		s.logs[key] = append(s.logs[key], &evt)
	}
	for _, rec := range cs.Snapshots {
		stored := *rec
		stored.Payload = append([]byte(nil), rec.Payload...)
		s.snapshots = append(s.snapshots, &stored)
	}

	return nil
}

// History returns the entity's audit log in append order.
func (s *Store) History(_ context.Context, entityID id.ID) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	log := s.logs[entityID.String()]
	out := make([]*audit.Event, len(log))
	for i, e := range log {
		evt := *e
		out[i] = &evt
	}
	return out, nil
}

func (s *Store) GetSnapshot(_ context.Context, snapID id.SnapshotID) (*snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	for _, rec := range s.snapshots {
		if rec.ID.String() == snapID.String() {
			out := *rec
			out.Payload = append([]byte(nil), rec.Payload...)
			return &out, nil
		}
	}
	return nil, store.ErrSnapshotNotFound
}

func (s *Store) ListSnapshots(_ context.Context, reportType string) ([]*snapshot.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*snapshot.Metadata, 0)
	for _, rec := range s.snapshots {
		if reportType == "" || rec.ReportType == reportType {
			meta := rec.Metadata
			result = append(result, &meta)
		}
	}
	return result, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
