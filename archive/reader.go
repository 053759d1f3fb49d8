package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
)

// ErrDecode reports a corrupt object: bad compression or XDR that does not
// hold the requested ledger.
var ErrDecode = errors.New("archive object could not be decoded")

// Reader turns ledger sequences into decoded LedgerCloseMeta records.
// Concurrent requests for the same object share one download, and the last
// decoded batch serves the following sequences it covers.
type Reader struct {
	store   ObjectStore
	schema  Schema
	limiter *rate.Limiter
	logger  *zap.Logger

	flight singleflight.Group
	mu     sync.Mutex
	last   *decodedBatch
}

type decodedBatch struct {
	path  string
	span  ledger.Range
	batch xdr.LedgerCloseMetaBatch
}

// NewReader creates a reader over store. limiter may be nil.
func NewReader(store ObjectStore, schema Schema, limiter *rate.Limiter, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		store:   store,
		schema:  schema,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "archive")),
	}
}

// GetLedger fetches the object holding seq and returns that ledger.
// Errors wrap ErrObjectNotFound or ErrDecode where applicable.
func (r *Reader) GetLedger(ctx context.Context, seq uint32) (xdr.LedgerCloseMeta, error) {
	batch, err := r.GetBatch(ctx, seq)
	if err != nil {
		return xdr.LedgerCloseMeta{}, err
	}
	return ledgerFromBatch(batch, seq)
}

// GetBatch returns the decoded object holding seq, downloading it unless it
// is the last batch decoded.
func (r *Reader) GetBatch(ctx context.Context, seq uint32) (xdr.LedgerCloseMetaBatch, error) {
	key := r.schema.Key(seq)
	path := key.Path()

	if batch, ok := r.cached(path, seq); ok {
		return batch, nil
	}

	v, err, _ := r.flight.Do(path, func() (interface{}, error) {
		if batch, ok := r.cached(path, seq); ok {
			return batch, nil
		}
		batch, err := r.download(ctx, key, seq)
		if err != nil {
			return nil, err
		}
		r.remember(path, batch)
		return batch, nil
	})
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, err
	}
	return v.(xdr.LedgerCloseMetaBatch), nil
}

func (r *Reader) cached(path string, seq uint32) (xdr.LedgerCloseMetaBatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil || r.last.path != path || !r.last.span.Contains(seq) {
		return xdr.LedgerCloseMetaBatch{}, false
	}
	return r.last.batch, true
}

func (r *Reader) remember(path string, batch xdr.LedgerCloseMetaBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &decodedBatch{
		path:  path,
		span:  ledger.Range{Start: uint32(batch.StartSequence), End: uint32(batch.EndSequence)},
		batch: batch,
	}
}

func (r *Reader) download(ctx context.Context, key ObjectKey, seq uint32) (xdr.LedgerCloseMetaBatch, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	r.logger.Debug("Fetching archive object",
		zap.Uint32("sequence", seq),
		zap.String("key", key.Path()))

	body, err := r.store.GetObject(ctx, key.Path())
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, err
	}
	defer body.Close()

	data, err := Decompress(body)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("object %s: %w", key.Path(), err)
	}

	batch, err := DecodeBatch(data)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("object %s: %w", key.Path(), err)
	}

	r.logger.Debug("Decoded archive object",
		zap.Uint32("sequence", seq),
		zap.Uint32("batch_start", uint32(batch.StartSequence)),
		zap.Uint32("batch_end", uint32(batch.EndSequence)),
		zap.Int("data_size", len(data)))

	return batch, nil
}

// Decompress reads a whole zstd stream.
func Decompress(r io.Reader) ([]byte, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w: %w", ErrDecode, err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed data: %w: %w", ErrDecode, err)
	}
	return data, nil
}

// DecodeBatch unmarshals an XDR LedgerCloseMetaBatch.
func DecodeBatch(data []byte) (xdr.LedgerCloseMetaBatch, error) {
	var batch xdr.LedgerCloseMetaBatch
	if err := batch.UnmarshalBinary(data); err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("failed to unmarshal LedgerCloseMetaBatch: %w: %w", ErrDecode, err)
	}
	return batch, nil
}

func ledgerFromBatch(batch xdr.LedgerCloseMetaBatch, seq uint32) (xdr.LedgerCloseMeta, error) {
	for _, lcm := range batch.LedgerCloseMetas {
		if lcm.LedgerSequence() == seq {
			return lcm, nil
		}
	}
	return xdr.LedgerCloseMeta{}, fmt.Errorf("ledger %d missing from batch %d-%d: %w",
		seq, batch.StartSequence, batch.EndSequence, ErrDecode)
}

func (r *Reader) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
