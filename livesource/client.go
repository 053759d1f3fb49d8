// Package livesource talks to a Stellar RPC node: current head lookup,
// by-sequence ledger fallback and contract balance simulation.
package livesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go/xdr"
	"github.com/stellar/stellar-rpc/client"
	"github.com/stellar/stellar-rpc/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrLedgerNotFound reports a ledger the node does not serve: outside its
	// retention window or not yet closed.
	ErrLedgerNotFound = errors.New("ledger not available from live node")
	// ErrDecode reports ledger metadata that is not valid XDR.
	ErrDecode = errors.New("live node ledger metadata could not be decoded")
)

type Options struct {
	// Endpoint serves getLatestLedger and getLedgers.
	Endpoint string
	// SorobanEndpoint serves simulateTransaction. Defaults to Endpoint.
	SorobanEndpoint   string
	NetworkPassphrase string
	HTTPClient        *http.Client
	Limiter           *rate.Limiter

	BreakerThreshold int
	BreakerReset     time.Duration
}

type Client struct {
	rpc        *client.Client
	soroban    *client.Client
	passphrase string
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	logger     *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcClient := client.NewClient(opts.Endpoint, opts.HTTPClient)
	soroban := rpcClient
	if opts.SorobanEndpoint != "" && opts.SorobanEndpoint != opts.Endpoint {
		soroban = client.NewClient(opts.SorobanEndpoint, opts.HTTPClient)
	}

	return &Client{
		rpc:        rpcClient,
		soroban:    soroban,
		passphrase: opts.NetworkPassphrase,
		limiter:    opts.Limiter,
		breaker:    NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerReset),
		logger:     logger.With(zap.String("component", "livesource")),
	}
}

// LatestLedgerSequence returns the node's current head.
func (c *Client) LatestLedgerSequence(ctx context.Context) (uint32, error) {
	if err := c.before(ctx); err != nil {
		return 0, err
	}

	resp, err := c.rpc.GetLatestLedger(ctx)
	c.after(err)
	if err != nil {
		return 0, fmt.Errorf("getLatestLedger: %w", err)
	}

	c.logger.Debug("Fetched latest ledger", zap.Uint32("sequence", resp.Sequence))
	return resp.Sequence, nil
}

// GetLedger fetches one ledger's metadata through getLedgers.
func (c *Client) GetLedger(ctx context.Context, seq uint32) (xdr.LedgerCloseMeta, error) {
	if err := c.before(ctx); err != nil {
		return xdr.LedgerCloseMeta{}, err
	}

	req := protocol.GetLedgersRequest{
		StartLedger: seq,
		Pagination: &protocol.LedgerPaginationOptions{
			Limit: 1,
		},
	}
	resp, err := c.rpc.GetLedgers(ctx, req)
	if err != nil {
		if isRangeBoundaryError(err) {
			// the node answered; the ledger is simply outside its window
			c.after(nil)
			return xdr.LedgerCloseMeta{}, fmt.Errorf("ledger %d: %w: %v", seq, ErrLedgerNotFound, err)
		}
		c.after(err)
		return xdr.LedgerCloseMeta{}, fmt.Errorf("getLedgers %d: %w", seq, err)
	}
	c.after(nil)

	if len(resp.Ledgers) == 0 || resp.Ledgers[0].Sequence != seq {
		return xdr.LedgerCloseMeta{}, fmt.Errorf("ledger %d (latest %d): %w", seq, resp.LatestLedger, ErrLedgerNotFound)
	}

	var lcm xdr.LedgerCloseMeta
	if err := xdr.SafeUnmarshalBase64(resp.Ledgers[0].LedgerMetadata, &lcm); err != nil {
		return xdr.LedgerCloseMeta{}, fmt.Errorf("ledger %d: %w: %w", seq, ErrDecode, err)
	}

	c.logger.Debug("Fetched ledger from live node", zap.Uint32("sequence", seq))
	return lcm, nil
}

func (c *Client) before(ctx context.Context) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return nil
}

func (c *Client) after(err error) {
	if err != nil {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// BreakerState exposes the circuit breaker state for health checks.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// isRangeBoundaryError recognizes the node's "start ledger must be between
// the oldest ledger and the latest ledger" rejection.
func isRangeBoundaryError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "must be between") &&
		strings.Contains(errStr, "latest ledger")
}
