// Package snapshot produces deterministic, hash-stamped point-in-time
// exports of ledger state. Two snapshots taken over identical data yield
// identical hashes: the filtered node set is mapped to stable records,
// sorted by ID, encoded with deterministic CBOR, and digested with BLAKE3.
package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/types"
)

// Sentinel errors.
var (
	ErrNotFound          = errors.New("snapshot: not found")
	ErrUnknownReportType = errors.New("snapshot: unknown report type")
)

// Report types.
const (
	ReportFundingSummary     = "funding_summary"     // all authority-bearing documents
	ReportObligationRegister = "obligation_register" // obligations and expenses
	ReportFullLedger         = "full_ledger"         // every node
)

// Filter narrows the entity set a snapshot covers.
type Filter struct {
	DocType  fund.DocType `json:"doc_type,omitempty"`
	Status   fund.Status  `json:"status,omitempty"`
	ParentID id.FundID    `json:"parent_id,omitempty"`
}

// Metadata describes a generated snapshot. Immutable once generated; the
// store keeps it in an append-only history.
type Metadata struct {
	types.Entity
	ID          id.SnapshotID     `json:"id"`
	ReportType  string            `json:"report_type"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	GeneratedBy string            `json:"generated_by"`
	GeneratedAt time.Time         `json:"generated_at"`
	Hash        string            `json:"hash"` // hex BLAKE3 over the payload
	NodeCount   int               `json:"node_count"`
}

// Record pairs snapshot metadata with the canonical payload it hashes.
type Record struct {
	Metadata
	Payload []byte `json:"-"`
}

// nodeRecord is the stable serialized form of a funding node. Only
// ledger-meaningful fields participate in the hash; wall-clock timestamps
// are excluded so the digest depends on data alone.
type nodeRecord struct {
	ID              string `cbor:"1,keyasint"`
	ParentID        string `cbor:"2,keyasint"`
	DocType         string `cbor:"3,keyasint"`
	Status          string `cbor:"4,keyasint"`
	TotalAuthority  int64  `cbor:"5,keyasint"`
	ObligatedAmount int64  `cbor:"6,keyasint"`
	DisbursedAmount int64  `cbor:"7,keyasint"`
	Currency        string `cbor:"8,keyasint"`
	Version         uint64 `cbor:"9,keyasint"`
}

// encMode is the deterministic CBOR encoder shared by all snapshots.
var encMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: cbor enc mode: %v", err))
	}
	encMode = mode
}

// View is the read access a snapshot needs: a consistent listing of nodes
// at the moment of the call.
type View interface {
	ListNodes(ctx context.Context, opts fund.ListOpts) ([]*fund.Node, error)
}

// Generate produces a snapshot record over the filtered entity set.
func Generate(ctx context.Context, view View, reportType string, filter Filter, actor string) (*Record, error) {
	opts, err := listOptsFor(reportType, filter)
	if err != nil {
		return nil, err
	}

	nodes, err := view.ListNodes(ctx, opts)
	if err != nil {
		return nil, err
	}

	records := make([]nodeRecord, 0, len(nodes))
	for _, n := range nodes {
		if !matchesReport(reportType, n) {
			continue
		}
		records = append(records, nodeRecord{
			ID:              n.ID.String(),
			ParentID:        n.ParentID.String(),
			DocType:         string(n.DocType),
			Status:          string(n.Status),
			TotalAuthority:  n.TotalAuthority.Amount,
			ObligatedAmount: n.ObligatedAmount.Amount,
			DisbursedAmount: n.DisbursedAmount.Amount,
			Currency:        n.TotalAuthority.Currency,
			Version:         n.Version,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	payload, err := encMode.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}

	digest := blake3.Sum256(payload)

	rec := &Record{
		Metadata: Metadata{
			Entity:      types.NewEntity(),
			ID:          id.NewSnapshotID(),
			ReportType:  reportType,
			Parameters:  filterParams(filter),
			GeneratedBy: actor,
			GeneratedAt: time.Now().UTC(),
			Hash:        hex.EncodeToString(digest[:]),
			NodeCount:   len(records),
		},
		Payload: payload,
	}
	return rec, nil
}

func listOptsFor(reportType string, filter Filter) (fund.ListOpts, error) {
	switch reportType {
	case ReportFundingSummary, ReportObligationRegister, ReportFullLedger:
	default:
		return fund.ListOpts{}, fmt.Errorf("%w: %q", ErrUnknownReportType, reportType)
	}
	return fund.ListOpts{
		DocType:  filter.DocType,
		Status:   filter.Status,
		ParentID: filter.ParentID,
	}, nil
}

// matchesReport applies the report type's built-in doc-type scope on top of
// the caller's filter.
func matchesReport(reportType string, n *fund.Node) bool {
	switch reportType {
	case ReportObligationRegister:
		return n.DocType == fund.DocObligation || n.DocType == fund.DocExpense
	case ReportFundingSummary:
		return n.DocType != fund.DocExpense && n.DocType != fund.DocContract &&
			n.DocType != fund.DocCapitalization
	default:
		return true
	}
}

func filterParams(filter Filter) map[string]string {
	params := make(map[string]string)
	if filter.DocType != "" {
		params["doc_type"] = string(filter.DocType)
	}
	if filter.Status != "" {
		params["status"] = string(filter.Status)
	}
	if !filter.ParentID.IsNil() {
		params["parent_id"] = filter.ParentID.String()
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
