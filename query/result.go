package query

import (
	"encoding/json"
	"time"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
)

// SkipReason classifies why a ledger is missing from an aggregate.
type SkipReason string

const (
	SkipNotFound     SkipReason = "not_found"
	SkipDecodeError  SkipReason = "decode_error"
	SkipNetworkError SkipReason = "network_error"
)

// Sources a ledger can be served from.
const (
	SourceArchive = "archive"
	SourceLive    = "live"
	SourceCache   = "cache"
)

// SkippedLedger is one entry of the aggregate's skip log.
type SkippedLedger struct {
	Sequence uint32     `json:"sequence"`
	Reason   SkipReason `json:"reason"`
	Error    string     `json:"error"`
}

// TransactionItem is one matched transaction.
type TransactionItem struct {
	LedgerSequence uint32    `json:"ledger_sequence"`
	ClosedAt       time.Time `json:"closed_at"`
	Index          uint32    `json:"index"`
	Hash           string    `json:"hash"`
	SourceAccount  string    `json:"source_account"`
	FeeSource      string    `json:"fee_source,omitempty"`
	FeeCharged     int64     `json:"fee_charged"`
	OperationCount int       `json:"operation_count"`
	OperationTypes []string  `json:"operation_types"`
	Successful     bool      `json:"successful"`
	EnvelopeXDR    string    `json:"envelope_xdr"`
	ResultXDR      string    `json:"result_xdr"`
	MetaXDR        string    `json:"meta_xdr,omitempty"`
}

// LedgerItem is one ledger returned by an "all" query.
type LedgerItem struct {
	Sequence         uint32    `json:"sequence"`
	Hash             string    `json:"hash"`
	ClosedAt         time.Time `json:"closed_at"`
	ProtocolVersion  uint32    `json:"protocol_version"`
	TransactionCount int       `json:"transaction_count"`
	Source           string    `json:"source"`
	MetadataXDR      string    `json:"metadata_xdr"`
}

// AggregateResult is the outcome of one range query. Items are ordered by
// ledger sequence, then by position within the ledger.
type AggregateResult struct {
	Kind             Kind            `json:"query"`
	StartSequence    uint32          `json:"start_sequence"`
	EndSequence      uint32          `json:"end_sequence"`
	LedgersProcessed uint32          `json:"ledgers_processed"`
	Address          string          `json:"address,omitempty"`
	Function         string          `json:"function,omitempty"`
	Count            int             `json:"count"`
	Skipped          []SkippedLedger `json:"skipped,omitempty"`
	Cancelled        bool            `json:"cancelled,omitempty"`

	Transactions []TransactionItem `json:"-"`
	Ledgers      []LedgerItem      `json:"-"`
}

// MarshalJSON always emits the item list for the query kind, empty or not.
func (r AggregateResult) MarshalJSON() ([]byte, error) {
	type plain AggregateResult
	out := struct {
		plain
		Transactions *[]TransactionItem `json:"transactions,omitempty"`
		Ledgers      *[]LedgerItem      `json:"ledgers,omitempty"`
	}{plain: plain(r)}

	if r.Kind == KindAll {
		ledgers := r.Ledgers
		if ledgers == nil {
			ledgers = []LedgerItem{}
		}
		out.Ledgers = &ledgers
	} else {
		txs := r.Transactions
		if txs == nil {
			txs = []TransactionItem{}
		}
		out.Transactions = &txs
	}
	return json.Marshal(out)
}

// Assembler accumulates per-ledger output in the order it is handed over.
// It has a single writer and is not safe for concurrent use.
type Assembler struct {
	rng       ledger.Range
	sel       Selection
	processed uint32
	txs       []TransactionItem
	ledgers   []LedgerItem
	skipped   []SkippedLedger
}

func NewAssembler(rng ledger.Range, sel Selection) *Assembler {
	return &Assembler{rng: rng, sel: sel}
}

// AddTransactions records a processed ledger and its retained transactions.
func (a *Assembler) AddTransactions(txs []TransactionItem) {
	a.processed++
	a.txs = append(a.txs, txs...)
}

// AddLedger records a processed ledger for an "all" query.
func (a *Assembler) AddLedger(item LedgerItem) {
	a.processed++
	a.ledgers = append(a.ledgers, item)
}

// Skip records a ledger that could not be processed.
func (a *Assembler) Skip(seq uint32, reason SkipReason, err error) {
	entry := SkippedLedger{Sequence: seq, Reason: reason}
	if err != nil {
		entry.Error = err.Error()
	}
	a.skipped = append(a.skipped, entry)
}

// Finalize builds the aggregate. The assembler must not be used afterwards.
func (a *Assembler) Finalize(cancelled bool) *AggregateResult {
	res := &AggregateResult{
		Kind:             a.sel.Kind,
		StartSequence:    a.rng.Start,
		EndSequence:      a.rng.End,
		LedgersProcessed: a.processed,
		Address:          a.sel.Address,
		Function:         a.sel.Function,
		Skipped:          a.skipped,
		Cancelled:        cancelled,
	}
	if a.sel.Kind == KindAll {
		res.Ledgers = a.ledgers
		res.Count = len(a.ledgers)
	} else {
		res.Transactions = a.txs
		res.Count = len(a.txs)
	}
	return res
}
