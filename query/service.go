package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/logging"
)

// Request is one range query as typed by a user.
type Request struct {
	// Ledger is "N", "A-B" or "-N".
	Ledger  string
	Kind    Kind
	Address string
	// Function names the contract function for KindFunction.
	Function string
}

// BalanceSource simulates token balances. The live node client satisfies it.
type BalanceSource interface {
	Balance(ctx context.Context, address, token string) (*livesource.Balance, error)
}

type ServiceConfig struct {
	// MaxLedgers rejects longer ranges before any fetch. Zero disables it.
	MaxLedgers uint32
}

// Service is the entry point shared by the CLI and the HTTP API.
type Service struct {
	orchestrator *Orchestrator
	latest       ledger.LatestSequenceProvider
	balances     BalanceSource
	maxLedgers   uint32
	logger       *zap.Logger
}

func NewService(orchestrator *Orchestrator, latest ledger.LatestSequenceProvider, balances BalanceSource, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orchestrator: orchestrator,
		latest:       latest,
		balances:     balances,
		maxLedgers:   cfg.MaxLedgers,
		logger:       logger.With(zap.String("component", "query")),
	}
}

// QueryLedgers validates req, resolves its range and fetches it. Malformed
// input fails before any ledger is requested; per-ledger failures only show
// up in the aggregate's skip log.
func (s *Service) QueryLedgers(ctx context.Context, req Request) (*AggregateResult, error) {
	kind := req.Kind
	if kind == "" {
		kind = KindAll
	}

	sel, err := selectionFor(kind, req.Address, req.Function)
	if err != nil {
		return nil, err
	}

	spec, err := ledger.ParseSpec(req.Ledger)
	if err != nil {
		return nil, err
	}
	if s.maxLedgers > 0 && spec.Kind == ledger.SpecRecent && spec.Count > s.maxLedgers {
		return nil, fmt.Errorf("%w: %d ledgers requested, at most %d allowed", ledger.ErrInvalidRangeSpec, spec.Count, s.maxLedgers)
	}

	rng, err := ledger.Resolve(ctx, spec, s.latest)
	if err != nil {
		return nil, err
	}
	if s.maxLedgers > 0 && rng.Len() > uint64(s.maxLedgers) {
		return nil, fmt.Errorf("%w: %d ledgers requested, at most %d allowed", ledger.ErrInvalidRangeSpec, rng.Len(), s.maxLedgers)
	}

	queriesTotal.WithLabelValues(string(kind)).Inc()
	start := time.Now()
	res := s.orchestrator.FetchRange(ctx, rng, sel)

	logging.LogQuery(s.logger, logging.QueryMetrics{
		Kind:             string(kind),
		StartSequence:    res.StartSequence,
		EndSequence:      res.EndSequence,
		LedgersProcessed: res.LedgersProcessed,
		LedgersSkipped:   len(res.Skipped),
		Matches:          res.Count,
		Cancelled:        res.Cancelled,
		Duration:         time.Since(start),
	})
	return res, nil
}

// selectionFor checks the inputs each kind needs and builds its filter.
func selectionFor(kind Kind, address, function string) (Selection, error) {
	address = strings.TrimSpace(address)
	function = strings.TrimSpace(function)
	sel := Selection{Kind: kind}

	switch kind {
	case KindAll:
		return sel, nil

	case KindTransactions, KindAddress:
		if address == "" {
			if kind == KindAddress {
				return Selection{}, fmt.Errorf("%w: address is required for query %s", ErrMissingParameter, kind)
			}
			return sel, nil
		}
		target, err := filters.ParseAddress(address)
		if err != nil {
			return Selection{}, err
		}
		sel.Address = target.String()
		sel.Filter = filters.NewAddressMatcher(target)
		return sel, nil

	case KindContract:
		if address == "" {
			return Selection{}, fmt.Errorf("%w: contract address is required for query %s", ErrMissingParameter, kind)
		}
		target, err := filters.ParseAddress(address)
		if err != nil {
			return Selection{}, err
		}
		matcher, err := filters.NewContractMatcher(target)
		if err != nil {
			return Selection{}, err
		}
		sel.Address = target.String()
		sel.Filter = matcher
		return sel, nil

	case KindFunction:
		if function == "" {
			return Selection{}, fmt.Errorf("%w: function name is required for query %s", ErrMissingParameter, kind)
		}
		matcher, err := filters.NewFunctionMatcher(function)
		if err != nil {
			return Selection{}, err
		}
		sel.Function = function
		sel.Filter = matcher
		return sel, nil

	default:
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownQueryKind, kind)
	}
}

// Balance validates the holder and token, then asks the live node.
func (s *Service) Balance(ctx context.Context, address, token string) (*livesource.Balance, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: address is required for balance", ErrMissingParameter)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: token is required for balance", ErrMissingParameter)
	}

	holder, err := filters.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if _, err := livesource.ResolveToken(token); err != nil {
		return nil, err
	}
	if s.balances == nil {
		return nil, fmt.Errorf("%w: no live node configured", ledger.ErrDependencyUnavailable)
	}

	bal, err := s.balances.Balance(ctx, holder.String(), strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, livesource.ErrUnknownToken) || errors.Is(err, livesource.ErrSimulationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ledger.ErrDependencyUnavailable, err)
	}
	return bal, nil
}
