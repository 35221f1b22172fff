package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/fedledger/authority/audit"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/store"
	"github.com/fedledger/authority/types"
)

func newNode(parentID id.FundID, dt fund.DocType, authority types.Money) *fund.Node {
	return &fund.Node{
		Entity:          types.NewEntity(),
		ID:              id.NewFundID(),
		ParentID:        parentID,
		DocType:         dt,
		Status:          fund.StatusActive,
		TotalAuthority:  authority,
		ObligatedAmount: types.Zero(authority.Currency),
		DisbursedAmount: types.Zero(authority.Currency),
	}
}

func mustCommit(t *testing.T, s *Store, cs *store.ChangeSet) {
	t.Helper()
	if err := s.Commit(context.Background(), cs); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	n := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))

	mustCommit(t, s, &store.ChangeSet{CommandID: id.NewCommandID(), Creates: []*fund.Node{n}})

	got, err := s.GetNode(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("created node version: got %d, want 1", got.Version)
	}
	if !got.TotalAuthority.Equal(types.USD(1000_00)) {
		t.Errorf("TotalAuthority: got %s", got.TotalAuthority)
	}

	// Reads are borrowed clones; mutating one must not leak into the store.
	got.Title = "mutated"
	again, _ := s.GetNode(ctx, n.ID)
	if again.Title == "mutated" {
		t.Error("GetNode returned a shared reference, not a clone")
	}
}

func TestGetNodeNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetNode(context.Background(), id.NewFundID()); !errors.Is(err, store.ErrNodeNotFound) {
		t.Errorf("got %v, want ErrNodeNotFound", err)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	s := New()
	n := newNode(id.ID{}, fund.DocAppropriation, types.USD(100_00))

	mustCommit(t, s, &store.ChangeSet{Creates: []*fund.Node{n}})
	err := s.Commit(context.Background(), &store.ChangeSet{Creates: []*fund.Node{n}})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("got %v, want ErrAlreadyExists", err)
	}
}

func TestVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	n := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))
	mustCommit(t, s, &store.ChangeSet{Creates: []*fund.Node{n}})

	// Two commands read the same version.
	first, _ := s.GetNode(ctx, n.ID)
	second, _ := s.GetNode(ctx, n.ID)

	first.ObligatedAmount = types.USD(600_00)
	mustCommit(t, s, &store.ChangeSet{
		Updates: []store.NodeWrite{{Node: first, ExpectedVersion: first.Version}},
	})

	second.ObligatedAmount = types.USD(500_00)
	err := s.Commit(ctx, &store.ChangeSet{
		Updates: []store.NodeWrite{{Node: second, ExpectedVersion: second.Version}},
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("got %v, want ErrConcurrentModification", err)
	}

	// The losing command left nothing behind.
	got, _ := s.GetNode(ctx, n.ID)
	if !got.ObligatedAmount.Equal(types.USD(600_00)) {
		t.Errorf("ObligatedAmount: got %s, want the first writer's $600.00", got.ObligatedAmount)
	}
	if got.Version != 2 {
		t.Errorf("Version: got %d, want 2", got.Version)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	parent := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))
	mustCommit(t, s, &store.ChangeSet{Creates: []*fund.Node{parent}})

	// A change set whose update carries a stale version must not apply its
	// creates or events either.
	read, _ := s.GetNode(ctx, parent.ID)
	read.ObligatedAmount = types.USD(100_00)
	child := newNode(parent.ID, fund.DocObligation, types.USD(100_00))

	err := s.Commit(ctx, &store.ChangeSet{
		Creates: []*fund.Node{child},
		Updates: []store.NodeWrite{{Node: read, ExpectedVersion: read.Version + 7}},
		Events:  []*audit.Event{audit.New(parent.ID, "tester", audit.ActionObligationPosted, "")},
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("got %v, want ErrConcurrentModification", err)
	}

	if _, err := s.GetNode(ctx, child.ID); !errors.Is(err, store.ErrNodeNotFound) {
		t.Error("rejected commit must not create nodes")
	}
	log, _ := s.History(ctx, parent.ID)
	if len(log) != 0 {
		t.Errorf("rejected commit must not append events, got %d", len(log))
	}
}

func TestCommitCarriesSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	parent := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))
	mustCommit(t, s, &store.ChangeSet{Creates: []*fund.Node{parent}})

	rec := &snapshot.Record{
		Metadata: snapshot.Metadata{
			Entity:     types.NewEntity(),
			ID:         id.NewSnapshotID(),
			ReportType: snapshot.ReportFullLedger,
			NodeCount:  1,
		},
		Payload: []byte("payload"),
	}

	// A rejected commit stores no snapshot.
	read, _ := s.GetNode(ctx, parent.ID)
	err := s.Commit(ctx, &store.ChangeSet{
		Updates:   []store.NodeWrite{{Node: read, ExpectedVersion: read.Version + 7}},
		Snapshots: []*snapshot.Record{rec},
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("got %v, want ErrConcurrentModification", err)
	}
	if _, err := s.GetSnapshot(ctx, rec.ID); !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Error("rejected commit must not store snapshots")
	}

	// The snapshot and its audit event land in one commit.
	mustCommit(t, s, &store.ChangeSet{
		Snapshots: []*snapshot.Record{rec},
		Events:    []*audit.Event{audit.New(rec.ID, "tester", audit.ActionSnapshotGenerated, "")},
	})
	stored, err := s.GetSnapshot(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if string(stored.Payload) != "payload" {
		t.Errorf("payload: got %q, want %q", stored.Payload, "payload")
	}
	log, _ := s.History(ctx, rec.ID)
	if len(log) != 1 || log[0].Action != audit.ActionSnapshotGenerated {
		t.Errorf("snapshot audit trail: got %v", log)
	}
}

func TestHistoryAppendOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	n := newNode(id.ID{}, fund.DocAllowance, types.USD(100_00))

	mustCommit(t, s, &store.ChangeSet{
		Creates: []*fund.Node{n},
		Events:  []*audit.Event{audit.New(n.ID, "a", audit.ActionCreated, "")},
	})
	mustCommit(t, s, &store.ChangeSet{
		Events: []*audit.Event{audit.New(n.ID, "b", audit.ActionObligationPosted, "")},
	})
	mustCommit(t, s, &store.ChangeSet{
		Events: []*audit.Event{audit.New(n.ID, "c", audit.ActionAuthorityDecreased, "")},
	})

	log, err := s.History(ctx, n.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("got %d events, want 3", len(log))
	}
	for i, e := range log {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: Seq %d, want %d", i, e.Seq, i+1)
		}
	}
	if log[0].Action != audit.ActionCreated || log[2].Action != audit.ActionAuthorityDecreased {
		t.Error("events out of append order")
	}
}

func TestChildrenAndListNodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	parent := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))
	a := newNode(parent.ID, fund.DocAllowance, types.USD(100_00))
	b := newNode(parent.ID, fund.DocAllowance, types.USD(200_00))
	other := newNode(id.ID{}, fund.DocAppropriation, types.USD(50_00))
	mustCommit(t, s, &store.ChangeSet{Creates: []*fund.Node{parent, a, b, other}})

	children, err := s.Children(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("Children: got %d, want 2", len(children))
	}

	allowances, err := s.ListNodes(ctx, fund.ListOpts{DocType: fund.DocAllowance})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(allowances) != 2 {
		t.Errorf("ListNodes(allowance): got %d, want 2", len(allowances))
	}

	roots, err := s.ListNodes(ctx, fund.ListOpts{DocType: fund.DocAppropriation})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("ListNodes(appropriation): got %d, want 2", len(roots))
	}
}

func TestListNodesPaginationStable(t *testing.T) {
	s := New()
	ctx := context.Background()
	parent := newNode(id.ID{}, fund.DocAppropriation, types.USD(1000_00))
	creates := []*fund.Node{parent}
	for i := 0; i < 5; i++ {
		creates = append(creates, newNode(parent.ID, fund.DocAllowance, types.USD(100_00)))
	}
	mustCommit(t, s, &store.ChangeSet{Creates: creates})

	page := func() []string {
		var ids []string
		for offset := 0; offset < 5; offset += 2 {
			nodes, err := s.ListNodes(ctx, fund.ListOpts{
				DocType: fund.DocAllowance,
				Offset:  offset,
				Limit:   2,
			})
			if err != nil {
				t.Fatalf("ListNodes(offset %d): %v", offset, err)
			}
			for _, n := range nodes {
				ids = append(ids, n.ID.String())
			}
		}
		return ids
	}

	first := page()
	if len(first) != 5 {
		t.Fatalf("paged nodes: got %d, want 5", len(first))
	}
	seen := make(map[string]bool)
	for _, nodeID := range first {
		if seen[nodeID] {
			t.Errorf("node %s appeared on more than one page", nodeID)
		}
		seen[nodeID] = true
	}

	// A second pass pages through in the same order.
	second := page()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("page order changed between calls: %v vs %v", first, second)
		}
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := context.Background()
	if err := s.Ping(ctx); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Ping after close: got %v, want ErrClosed", err)
	}
	if _, err := s.GetNode(ctx, id.NewFundID()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("GetNode after close: got %v, want ErrClosed", err)
	}
	if err := s.Commit(ctx, &store.ChangeSet{}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Commit after close: got %v, want ErrClosed", err)
	}
}
