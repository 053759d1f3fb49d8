package query

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stellar/go/ingest"
	serrors "github.com/stellar/go/support/errors"
	"github.com/stellar/go/xdr"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
)

// ErrLedgerProcessing reports a decoded ledger whose transactions could not
// be read back, such as a transaction set that does not line up with its
// processing results.
var ErrLedgerProcessing = errors.New("ledger could not be processed")

func processingError(err error) error {
	return fmt.Errorf("%w: %w", ErrLedgerProcessing, err)
}

func closedAt(lcm xdr.LedgerCloseMeta) time.Time {
	header := lcm.LedgerHeaderHistoryEntry().Header
	return time.Unix(int64(header.ScpValue.CloseTime), 0).UTC()
}

func newLedgerItem(lcm xdr.LedgerCloseMeta, source string) (LedgerItem, error) {
	encoded, err := xdr.MarshalBase64(lcm)
	if err != nil {
		return LedgerItem{}, serrors.Wrapf(processingError(err), "encoding ledger %d", lcm.LedgerSequence())
	}
	return LedgerItem{
		Sequence:         lcm.LedgerSequence(),
		Hash:             lcm.LedgerHash().HexString(),
		ClosedAt:         closedAt(lcm),
		ProtocolVersion:  lcm.ProtocolVersion(),
		TransactionCount: lcm.CountTransactions(),
		Source:           source,
		MetadataXDR:      encoded,
	}, nil
}

// transactionItems reads a ledger's transactions in apply order and keeps
// those accepted by filter. Every ledger version goes through the same
// envelope filter; result metadata is carried on the item but never matched.
func transactionItems(lcm xdr.LedgerCloseMeta, passphrase string, filter filters.TransactionFilter) ([]TransactionItem, error) {
	seq := lcm.LedgerSequence()
	if filter == nil {
		filter = filters.MatchAll
	}

	txReader, err := ingest.NewLedgerTransactionReaderFromLedgerCloseMeta(passphrase, lcm)
	if err != nil {
		return nil, serrors.Wrapf(processingError(err), "creating transaction reader for ledger %d", seq)
	}
	defer txReader.Close()

	ledgerClose := closedAt(lcm)
	var items []TransactionItem
	for {
		tx, err := txReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, serrors.Wrapf(processingError(err), "reading transaction in ledger %d", seq)
		}

		if !filter.Match(tx.Envelope) {
			continue
		}

		item, err := newTransactionItem(seq, ledgerClose, tx)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func newTransactionItem(seq uint32, closed time.Time, tx ingest.LedgerTransaction) (TransactionItem, error) {
	envelopeXDR, err := xdr.MarshalBase64(tx.Envelope)
	if err != nil {
		return TransactionItem{}, serrors.Wrapf(processingError(err), "encoding envelope %d in ledger %d", tx.Index, seq)
	}
	resultXDR, err := xdr.MarshalBase64(tx.Result)
	if err != nil {
		return TransactionItem{}, serrors.Wrapf(processingError(err), "encoding result %d in ledger %d", tx.Index, seq)
	}

	item := TransactionItem{
		LedgerSequence: seq,
		ClosedAt:       closed,
		Index:          tx.Index,
		Hash:           tx.Result.TransactionHash.HexString(),
		SourceAccount:  muxedString(tx.Envelope.SourceAccount()),
		FeeCharged:     int64(tx.Result.Result.FeeCharged),
		Successful:     tx.Successful(),
		EnvelopeXDR:    envelopeXDR,
		ResultXDR:      resultXDR,
	}
	if tx.Envelope.IsFeeBump() {
		item.FeeSource = muxedString(tx.Envelope.FeeBumpAccount())
	}

	metaXDR, err := xdr.MarshalBase64(tx.UnsafeMeta)
	if err != nil {
		return TransactionItem{}, serrors.Wrapf(processingError(err), "encoding meta %d in ledger %d", tx.Index, seq)
	}
	item.MetaXDR = metaXDR

	ops := tx.Envelope.Operations()
	item.OperationCount = len(ops)
	item.OperationTypes = make([]string, 0, len(ops))
	for _, op := range ops {
		item.OperationTypes = append(item.OperationTypes, operationTypeName(op.Body.Type))
	}
	return item, nil
}

func muxedString(m xdr.MuxedAccount) string {
	addr, err := m.GetAddress()
	if err != nil {
		return ""
	}
	return addr
}

// operationTypeName turns OperationTypeCreateAccount into create_account.
func operationTypeName(t xdr.OperationType) string {
	name := strings.TrimPrefix(t.String(), "OperationType")
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
