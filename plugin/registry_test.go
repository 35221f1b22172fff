package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/types"
)

// recorder implements a subset of the hooks and records calls.
type recorder struct {
	name        string
	created     int
	transitions int
	failErr     error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnNodeCreated(_ context.Context, _ *fund.Node) error {
	r.created++
	return r.failErr
}

func (r *recorder) OnTransition(_ context.Context, _ *fund.Node, _ fund.Status, _ string) error {
	r.transitions++
	return nil
}

func TestRegisterAndDispatch(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{name: "recorder"}
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	n := &fund.Node{ID: id.NewFundID(), DocType: fund.DocAllowance, Status: fund.StatusActive}

	reg.EmitNodeCreated(ctx, n)
	reg.EmitTransition(ctx, n, fund.StatusPendingApproval, "Approve")
	// Hooks the recorder doesn't implement dispatch to nobody.
	reg.EmitAuthorityAdjusted(ctx, n, types.USD(100))
	reg.EmitCommandFailed(ctx, id.NewCommandID(), errors.New("boom"))

	if rec.created != 1 {
		t.Errorf("OnNodeCreated calls: got %d, want 1", rec.created)
	}
	if rec.transitions != 1 {
		t.Errorf("OnTransition calls: got %d, want 1", rec.transitions)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&recorder{name: "dup"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&recorder{name: "dup"}); err == nil {
		t.Error("expected error for duplicate plugin name")
	}
}

func TestFailingPluginDoesNotStopDispatch(t *testing.T) {
	reg := NewRegistry()
	bad := &recorder{name: "bad", failErr: errors.New("hook failed")}
	good := &recorder{name: "good"}
	if err := reg.Register(bad); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(good); err != nil {
		t.Fatalf("Register: %v", err)
	}

	n := &fund.Node{ID: id.NewFundID()}
	reg.EmitNodeCreated(context.Background(), n)

	if bad.created != 1 || good.created != 1 {
		t.Errorf("calls: bad=%d good=%d, want 1 and 1", bad.created, good.created)
	}
}
