package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/types"
)

// fakeView is an in-memory View for validator tests.
type fakeView struct {
	nodes map[string]*fund.Node
}

func newFakeView(nodes ...*fund.Node) *fakeView {
	v := &fakeView{nodes: make(map[string]*fund.Node)}
	for _, n := range nodes {
		v.nodes[n.ID.String()] = n
	}
	return v
}

func (v *fakeView) GetNode(_ context.Context, nodeID id.FundID) (*fund.Node, error) {
	n, ok := v.nodes[nodeID.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	return n, nil
}

func (v *fakeView) Children(_ context.Context, parentID id.FundID) ([]*fund.Node, error) {
	var children []*fund.Node
	for _, n := range v.nodes {
		if n.ParentID.String() == parentID.String() {
			children = append(children, n)
		}
	}
	return children, nil
}

func node(parentID id.FundID, dt fund.DocType, status fund.Status, authority types.Money) *fund.Node {
	return &fund.Node{
		Entity:          types.NewEntity(),
		ID:              id.NewFundID(),
		ParentID:        parentID,
		DocType:         dt,
		Status:          status,
		TotalAuthority:  authority,
		ObligatedAmount: types.Zero(authority.Currency),
		DisbursedAmount: types.Zero(authority.Currency),
	}
}

func TestValidateAgainstDistributions(t *testing.T) {
	// Appropriation of $100,000 with one $60,000 allowance distributed.
	appn := node(id.ID{}, fund.DocAppropriation, fund.StatusActive, types.USD(100000_00))
	allow := node(appn.ID, fund.DocAllowance, fund.StatusActive, types.USD(60000_00))
	view := newFakeView(appn, allow)
	ctx := context.Background()

	// $40,000 remains; $40,000 fits exactly.
	res, err := Validate(ctx, view, appn.ID, types.USD(40000_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got %s", res.Message)
	}

	// $45,000 falls short by $5,000.
	res, err = Validate(ctx, view, appn.ID, types.USD(45000_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Valid {
		t.Fatal("expected rejection")
	}
	if !res.Shortfall.Equal(types.USD(5000_00)) {
		t.Errorf("Shortfall: got %s, want $5000.00", res.Shortfall)
	}
	if !res.Available.Equal(types.USD(40000_00)) {
		t.Errorf("Available: got %s, want $40000.00", res.Available)
	}

	var cErr *ComplianceError
	if !errors.As(res.Err(), &cErr) {
		t.Fatalf("expected *ComplianceError, got %T", res.Err())
	}
	if !errors.Is(res.Err(), ErrAntiDeficiency) {
		t.Error("expected errors.Is(err, ErrAntiDeficiency)")
	}
}

func TestValidateReleaseAlwaysValid(t *testing.T) {
	appn := node(id.ID{}, fund.DocAppropriation, fund.StatusActive, types.USD(1000_00))
	view := newFakeView(appn)

	res, err := Validate(context.Background(), view, appn.ID, types.USD(-500_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Errorf("negative delta should always be valid, got %s", res.Message)
	}
}

func TestReleasedChildrenDoNotCount(t *testing.T) {
	appn := node(id.ID{}, fund.DocAppropriation, fund.StatusActive, types.USD(1000_00))
	rejected := node(appn.ID, fund.DocAllowance, fund.StatusRejected, types.USD(800_00))
	canceled := node(appn.ID, fund.DocProjectOrder, fund.StatusCanceled, types.USD(700_00))
	view := newFakeView(appn, rejected, canceled)

	res, err := Validate(context.Background(), view, appn.ID, types.USD(1000_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Errorf("released children must not count against the parent: %s", res.Message)
	}
}

func TestValidateObligationUsesUnliquidated(t *testing.T) {
	obl := node(id.NewFundID(), fund.DocObligation, fund.StatusObligated, types.USD(100_00))
	obl.ObligatedAmount = types.USD(100_00)
	obl.DisbursedAmount = types.USD(60_00)
	view := newFakeView(obl)
	ctx := context.Background()

	res, err := Validate(ctx, view, obl.ID, types.USD(40_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Errorf("$40.00 fits the unliquidated balance: %s", res.Message)
	}

	res, err = Validate(ctx, view, obl.ID, types.USD(41_00))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Valid {
		t.Error("expected rejection above the unliquidated balance")
	}
}

func TestValidateAdjustmentIncrease(t *testing.T) {
	// Root $1,000 fully distributed to one allowance; the allowance holds a
	// $100 order. Increasing the order draws only on the allowance's
	// headroom — the allowance's own carve-out of the root does not move.
	root := node(id.ID{}, fund.DocAppropriation, fund.StatusActive, types.USD(1000_00))
	mid := node(root.ID, fund.DocAllowance, fund.StatusActive, types.USD(1000_00))
	target := node(mid.ID, fund.DocProjectOrder, fund.StatusDraft, types.USD(100_00))
	view := newFakeView(root, mid, target)
	ctx := context.Background()

	// $200 fits within the allowance's $900 headroom even though the root
	// has nothing left to distribute.
	res, err := ValidateAdjustment(ctx, view, target.ID, types.USD(200_00))
	if err != nil {
		t.Fatalf("ValidateAdjustment: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got %s", res.Message)
	}

	// $1,000 exceeds the allowance's headroom; the rejection names the
	// allowance, not some other ancestor.
	res, err = ValidateAdjustment(ctx, view, target.ID, types.USD(1000_00))
	if err != nil {
		t.Fatalf("ValidateAdjustment: %v", err)
	}
	if res.Valid {
		t.Fatal("expected rejection at the parent level")
	}
	if res.NodeID.String() != mid.ID.String() {
		t.Errorf("rejection should name the parent: got %s, want %s", res.NodeID, mid.ID)
	}
	if !res.Shortfall.Equal(types.USD(100_00)) {
		t.Errorf("shortfall: got %s, want $100.00", res.Shortfall)
	}

	// Increasing a root places no demand on anything.
	res, err = ValidateAdjustment(ctx, view, root.ID, types.USD(500_00))
	if err != nil {
		t.Fatalf("ValidateAdjustment: %v", err)
	}
	if !res.Valid {
		t.Fatalf("root increase: expected valid, got %s", res.Message)
	}
}

func TestValidateAdjustmentDecreaseFailClosed(t *testing.T) {
	parent := node(id.ID{}, fund.DocAppropriation, fund.StatusActive, types.USD(1000_00))
	target := node(parent.ID, fund.DocAllowance, fund.StatusActive, types.USD(500_00))
	target.ObligatedAmount = types.USD(200_00)
	child := node(target.ID, fund.DocObligation, fund.StatusObligated, types.USD(200_00))
	view := newFakeView(parent, target, child)
	ctx := context.Background()

	// Down to exactly the committed floor is allowed.
	res, err := ValidateAdjustment(ctx, view, target.ID, types.USD(-300_00))
	if err != nil {
		t.Fatalf("ValidateAdjustment: %v", err)
	}
	if !res.Valid {
		t.Fatalf("reduction to the floor should be valid: %s", res.Message)
	}

	// Below the floor is rejected, never clamped.
	res, err = ValidateAdjustment(ctx, view, target.ID, types.USD(-301_00))
	if err != nil {
		t.Fatalf("ValidateAdjustment: %v", err)
	}
	if res.Valid {
		t.Fatal("expected fail-closed rejection")
	}
	if !res.Shortfall.Equal(types.USD(1_00)) {
		t.Errorf("Shortfall: got %s, want $1.00", res.Shortfall)
	}
}

func TestValidateDisbursement(t *testing.T) {
	obl := node(id.NewFundID(), fund.DocObligation, fund.StatusObligated, types.USD(100_00))
	obl.ObligatedAmount = types.USD(100_00)
	obl.DisbursedAmount = types.USD(70_00)

	if err := ValidateDisbursement(obl, types.USD(30_00)); err != nil {
		t.Errorf("exact liquidation should pass: %v", err)
	}
	if err := ValidateDisbursement(obl, types.USD(31_00)); !errors.Is(err, ErrOverDisbursement) {
		t.Errorf("got %v, want ErrOverDisbursement", err)
	}
}
