package id_test

import (
	"strings"
	"testing"

	"github.com/fedledger/authority/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"FundID", id.NewFundID, "fund_"},
		{"ObligationID", id.NewObligationID, "obl_"},
		{"ExpenseID", id.NewExpenseID, "exp_"},
		{"ContractID", id.NewContractID, "ctr_"},
		{"CapitalizationID", id.NewCapitalizationID, "cap_"},
		{"AuditEventID", id.NewAuditEventID, "aud_"},
		{"SnapshotID", id.NewSnapshotID, "snap_"},
		{"CommandID", id.NewCommandID, "cmd_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixFund)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixFund {
		t.Errorf("expected prefix %q, got %q", id.PrefixFund, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"FundID", id.NewFundID, id.ParseFundID},
		{"ObligationID", id.NewObligationID, id.ParseObligationID},
		{"SnapshotID", id.NewSnapshotID, id.ParseSnapshotID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseFundID rejects obl_", id.NewObligationID().String(), id.ParseFundID},
		{"ParseObligationID rejects fund_", id.NewFundID().String(), id.ParseObligationID},
		{"ParseSnapshotID rejects cmd_", id.NewCommandID().String(), id.ParseSnapshotID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	ids := []id.ID{
		id.NewFundID(),
		id.NewObligationID(),
		id.NewExpenseID(),
		id.NewContractID(),
		id.NewCapitalizationID(),
		id.NewAuditEventID(),
		id.NewSnapshotID(),
		id.NewCommandID(),
	}

	for _, i := range ids {
		t.Run(i.String(), func(t *testing.T) {
			parsed, err := id.ParseAny(i.String())
			if err != nil {
				t.Fatalf("ParseAny(%q) failed: %v", i.String(), err)
			}
			if parsed.String() != i.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), i.String())
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewFundID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewObligationID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewFundID()
	b := id.NewFundID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewFundID() calls returned the same ID: %q", a.String())
	}
}
