package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/xdr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/archive"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
)

// LedgerSource returns one decoded ledger by sequence. The archive reader and
// the live node client both satisfy it.
type LedgerSource interface {
	GetLedger(ctx context.Context, seq uint32) (xdr.LedgerCloseMeta, error)
}

// Selection describes which items a range query keeps.
type Selection struct {
	Kind Kind
	// Filter applies to transaction kinds. Nil keeps every transaction.
	Filter filters.TransactionFilter
	// Address and Function are echoed in the aggregate.
	Address  string
	Function string
}

type OrchestratorConfig struct {
	NetworkPassphrase string
	// Concurrency above 1 fetches that many ledgers at a time.
	Concurrency int
	Cache       *LedgerCache
}

// Orchestrator fetches every ledger of a range, archive first, and folds the
// retained items into an aggregate. Per-ledger failures are recorded as skips
// and never stop the range.
type Orchestrator struct {
	archive     LedgerSource
	fallback    LedgerSource
	cache       *LedgerCache
	passphrase  string
	concurrency int
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator. fallback may be nil, in which case
// ledgers missing from the archive are skipped as not found.
func NewOrchestrator(archiveSource, fallback LedgerSource, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		archive:     archiveSource,
		fallback:    fallback,
		cache:       cfg.Cache,
		passphrase:  cfg.NetworkPassphrase,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "orchestrator")),
	}
}

// ledgerOutcome is what one sequence produced.
type ledgerOutcome struct {
	seq       uint32
	attempted bool
	source    string
	ledger    *LedgerItem
	txs       []TransactionItem
	err       error
}

// FetchRange processes rng and returns the aggregate. When ctx ends the
// ledgers finished so far are returned with Cancelled set.
func (o *Orchestrator) FetchRange(ctx context.Context, rng ledger.Range, sel Selection) *AggregateResult {
	asm := NewAssembler(rng, sel)
	var cancelled bool
	if o.concurrency > 1 && rng.Len() > 1 {
		cancelled = o.fetchParallel(ctx, rng, sel, asm)
	} else {
		cancelled = o.fetchSequential(ctx, rng, sel, asm)
	}

	res := asm.Finalize(cancelled)
	if sel.Kind != KindAll {
		transactionsMatchedTotal.Add(float64(res.Count))
	}
	return res
}

func (o *Orchestrator) fetchSequential(ctx context.Context, rng ledger.Range, sel Selection, asm *Assembler) bool {
	for seq := rng.Start; ; seq++ {
		if ctx.Err() != nil {
			return true
		}

		out := o.load(ctx, seq, sel)
		if isCancellation(ctx, out.err) {
			return true
		}
		o.record(asm, out)

		if seq == rng.End {
			return false
		}
	}
}

// parallelWindow is how many slots per unit of concurrency are buffered
// before they are merged into the aggregate.
const parallelWindow = 8

// fetchParallel walks rng in windows of concurrency*parallelWindow sequences.
// Each window fills one slot per sequence with at most o.concurrency loads in
// flight and is merged in sequence order before the next one starts.
func (o *Orchestrator) fetchParallel(ctx context.Context, rng ledger.Range, sel Selection, asm *Assembler) bool {
	window := uint64(o.concurrency) * parallelWindow
	for start := uint64(rng.Start); start <= uint64(rng.End); start += window {
		if ctx.Err() != nil {
			return true
		}
		end := start + window - 1
		if end > uint64(rng.End) {
			end = uint64(rng.End)
		}
		if o.fetchWindow(ctx, ledger.Range{Start: uint32(start), End: uint32(end)}, sel, asm) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fetchWindow(ctx context.Context, rng ledger.Range, sel Selection, asm *Assembler) bool {
	outcomes := make([]ledgerOutcome, rng.Len())

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range outcomes {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = o.load(ctx, rng.Start+uint32(i), sel)
			return nil
		})
	}
	_ = g.Wait()

	cancelled := false
	for _, out := range outcomes {
		if !out.attempted || isCancellation(ctx, out.err) {
			cancelled = true
			continue
		}
		o.record(asm, out)
	}
	return cancelled
}

func (o *Orchestrator) load(ctx context.Context, seq uint32, sel Selection) ledgerOutcome {
	out := ledgerOutcome{seq: seq, attempted: true}

	lcm, source, err := o.fetch(ctx, seq)
	if err != nil {
		out.err = err
		return out
	}
	out.source = source

	if lcm.LedgerSequence() != seq {
		out.err = fmt.Errorf("%w: source returned ledger %d for %d", ErrLedgerProcessing, lcm.LedgerSequence(), seq)
		return out
	}

	if sel.Kind == KindAll {
		item, err := newLedgerItem(lcm, source)
		if err != nil {
			out.err = err
			return out
		}
		out.ledger = &item
		return out
	}

	out.txs, out.err = transactionItems(lcm, o.passphrase, sel.Filter)
	return out
}

// fetch consults the cache, then the archive, then the live node. The live
// node is only asked when the archive definitively has no object.
func (o *Orchestrator) fetch(ctx context.Context, seq uint32) (xdr.LedgerCloseMeta, string, error) {
	if lcm, _, ok := o.cache.Get(seq); ok {
		ledgersFetchedTotal.WithLabelValues(SourceCache).Inc()
		return lcm, SourceCache, nil
	}

	start := time.Now()
	lcm, err := o.archive.GetLedger(ctx, seq)
	fetchDurationHistogram.WithLabelValues(SourceArchive).Observe(time.Since(start).Seconds())
	if err == nil {
		ledgersFetchedTotal.WithLabelValues(SourceArchive).Inc()
		o.cache.Put(seq, lcm, SourceArchive)
		return lcm, SourceArchive, nil
	}

	if !errors.Is(err, archive.ErrObjectNotFound) || o.fallback == nil {
		return xdr.LedgerCloseMeta{}, "", err
	}

	o.logger.Info("Ledger not archived, falling back to live node", zap.Uint32("sequence", seq))
	liveFallbacksTotal.Inc()

	start = time.Now()
	lcm, err = o.fallback.GetLedger(ctx, seq)
	fetchDurationHistogram.WithLabelValues(SourceLive).Observe(time.Since(start).Seconds())
	if err != nil {
		return xdr.LedgerCloseMeta{}, "", fmt.Errorf("ledger %d not archived, live fallback failed: %w", seq, err)
	}

	ledgersFetchedTotal.WithLabelValues(SourceLive).Inc()
	o.cache.Put(seq, lcm, SourceLive)
	return lcm, SourceLive, nil
}

func (o *Orchestrator) record(asm *Assembler, out ledgerOutcome) {
	if out.err != nil {
		reason := Classify(out.err)
		o.logger.Warn("Skipping ledger",
			zap.Uint32("sequence", out.seq),
			zap.String("reason", string(reason)),
			zap.Error(out.err))
		ledgersSkippedTotal.WithLabelValues(string(reason)).Inc()
		asm.Skip(out.seq, reason, out.err)
		return
	}

	if out.ledger != nil {
		asm.AddLedger(*out.ledger)
		return
	}
	if len(out.txs) > 0 {
		o.logger.Debug("Matched transactions",
			zap.Uint32("sequence", out.seq),
			zap.String("source", out.source),
			zap.Int("count", len(out.txs)))
	}
	asm.AddTransactions(out.txs)
}

// Classify maps a per-ledger failure to its skip reason. Anything that is
// neither a definitive miss nor undecodable data counts as a network error.
func Classify(err error) SkipReason {
	switch {
	case errors.Is(err, archive.ErrObjectNotFound), errors.Is(err, livesource.ErrLedgerNotFound):
		return SkipNotFound
	case errors.Is(err, archive.ErrDecode), errors.Is(err, livesource.ErrDecode), errors.Is(err, ErrLedgerProcessing):
		return SkipDecodeError
	default:
		return SkipNetworkError
	}
}

func isCancellation(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
