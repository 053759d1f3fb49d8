package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
	lt "github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledgertest"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
)

type fakeBalances struct {
	gotAddress, gotToken string
	err                  error
}

func (f *fakeBalances) Balance(ctx context.Context, address, token string) (*livesource.Balance, error) {
	f.gotAddress, f.gotToken = address, token
	if f.err != nil {
		return nil, f.err
	}
	return &livesource.Balance{Address: address, Token: token, Raw: "10", Balance: "0.0000010"}, nil
}

func newTestService(src *fakeSource, head uint32, headErr error, maxLedgers uint32) *Service {
	latest := ledger.LatestSequenceFunc(func(context.Context) (uint32, error) {
		return head, headErr
	})
	return NewService(newTestOrchestrator(src, nil, 1), latest, &fakeBalances{}, ServiceConfig{MaxLedgers: maxLedgers}, nil)
}

func TestQueryLedgersRecentCount(t *testing.T) {
	src := newFakeSource(lt.LedgerV1(98), lt.LedgerV1(99), lt.LedgerV1(100))
	svc := newTestService(src, 100, nil, 0)

	res, err := svc.QueryLedgers(context.Background(), Request{Ledger: "-3", Kind: KindAll})
	require.NoError(t, err)

	assert.Equal(t, uint32(98), res.StartSequence)
	assert.Equal(t, uint32(100), res.EndSequence)
	assert.Equal(t, uint32(3), res.LedgersProcessed)
}

func TestQueryLedgersRejectsBeforeFetching(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		headErr error
		max     uint32
		wantErr error
	}{
		{"inverted range", Request{Ledger: "10-5"}, nil, 0, ledger.ErrInvalidRangeSpec},
		{"garbage range", Request{Ledger: "abc"}, nil, 0, ledger.ErrInvalidRangeSpec},
		{"zero recent", Request{Ledger: "-0"}, nil, 0, ledger.ErrInvalidRangeSpec},
		{"bad address", Request{Ledger: "5", Kind: KindAddress, Address: "GNOTANADDRESS"}, nil, 0, filters.ErrInvalidAddress},
		{"address missing", Request{Ledger: "5", Kind: KindAddress}, nil, 0, ErrMissingParameter},
		{"contract missing", Request{Ledger: "5", Kind: KindContract}, nil, 0, ErrMissingParameter},
		{"contract given an account", Request{Ledger: "5", Kind: KindContract, Address: lt.Address(1)}, nil, 0, filters.ErrInvalidAddress},
		{"function missing", Request{Ledger: "5", Kind: KindFunction}, nil, 0, ErrMissingParameter},
		{"unknown kind", Request{Ledger: "5", Kind: Kind("balance")}, nil, 0, ErrUnknownQueryKind},
		{"head unavailable", Request{Ledger: "-10"}, errors.New("connection refused"), 0, ledger.ErrDependencyUnavailable},
		{"range too long", Request{Ledger: "1-101"}, nil, 100, ledger.ErrInvalidRangeSpec},
		{"recent too long", Request{Ledger: "-101"}, nil, 100, ledger.ErrInvalidRangeSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			svc := newTestService(src, 1000, tt.headErr, tt.max)

			_, err := svc.QueryLedgers(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, src.totalCalls())
		})
	}
}

func TestQueryLedgersContractAndFunction(t *testing.T) {
	contract := lt.ScContract(4)
	src := newFakeSource(lt.LedgerV1(70,
		lt.Tx(lt.Muxed(1), lt.InvokeContractOp(contract, "work", lt.ScAddressVal(lt.ScAccount(2)))),
		lt.Tx(lt.Muxed(1), lt.InvokeContractOp(lt.ScContract(5), "plant")),
		lt.Tx(lt.Muxed(1), lt.BumpSequenceOp()),
	))
	svc := newTestService(src, 100, nil, 0)

	res, err := svc.QueryLedgers(context.Background(), Request{Ledger: "70", Kind: KindContract, Address: lt.ContractAddress(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, lt.ContractAddress(4), res.Address)
	assert.Equal(t, []string{"invoke_host_function"}, res.Transactions[0].OperationTypes)

	res, err = svc.QueryLedgers(context.Background(), Request{Ledger: "70", Kind: KindFunction, Function: "plant"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "plant", res.Function)

	res, err = svc.QueryLedgers(context.Background(), Request{Ledger: "70", Kind: KindTransactions})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)

	res, err = svc.QueryLedgers(context.Background(), Request{Ledger: "70", Kind: KindTransactions, Address: lt.Address(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestQueryLedgersMuxedTargetNormalized(t *testing.T) {
	src := newFakeSource(lt.LedgerV0(3, lt.Tx(lt.MuxedWithID(6, 99), lt.BumpSequenceOp())))
	svc := newTestService(src, 100, nil, 0)

	mx := lt.MuxedWithID(6, 12345)
	muxed, err := mx.GetAddress()
	require.NoError(t, err)

	res, err := svc.QueryLedgers(context.Background(), Request{Ledger: "3", Kind: KindAddress, Address: muxed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, lt.Address(6), res.Address)
}

func TestServiceBalance(t *testing.T) {
	balances := &fakeBalances{}
	svc := NewService(newTestOrchestrator(newFakeSource(), nil, 1), nil, balances, ServiceConfig{}, nil)

	bal, err := svc.Balance(context.Background(), " "+lt.Address(3)+" ", "XLM")
	require.NoError(t, err)
	assert.Equal(t, lt.Address(3), balances.gotAddress)
	assert.Equal(t, "XLM", balances.gotToken)
	assert.Equal(t, "0.0000010", bal.Balance)

	_, err = svc.Balance(context.Background(), lt.Address(3), "doge")
	assert.ErrorIs(t, err, livesource.ErrUnknownToken)

	_, err = svc.Balance(context.Background(), "nope", "xlm")
	assert.ErrorIs(t, err, filters.ErrInvalidAddress)

	_, err = svc.Balance(context.Background(), "", "xlm")
	assert.ErrorIs(t, err, ErrMissingParameter)

	balances.err = errors.New("rpc down")
	_, err = svc.Balance(context.Background(), lt.Address(3), "xlm")
	assert.ErrorIs(t, err, ledger.ErrDependencyUnavailable)

	balances.err = fmt.Errorf("%w: trustline entry is missing for account", livesource.ErrSimulationFailed)
	_, err = svc.Balance(context.Background(), lt.Address(3), "usdc")
	assert.ErrorIs(t, err, livesource.ErrSimulationFailed)
	assert.NotErrorIs(t, err, ledger.ErrDependencyUnavailable)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindAll, false},
		{"all", KindAll, false},
		{"Transactions", KindTransactions, false},
		{" address ", KindAddress, false},
		{"contract", KindContract, false},
		{"function", KindFunction, false},
		{"balance", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownQueryKind, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAggregateResultJSON(t *testing.T) {
	asm := NewAssembler(ledger.Range{Start: 5, End: 6}, Selection{Kind: KindAddress, Address: lt.Address(1)})
	asm.AddTransactions(nil)
	asm.Skip(6, SkipNetworkError, errors.New("timeout"))
	res := asm.Finalize(false)

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "address", got["query"])
	assert.Equal(t, float64(1), got["ledgers_processed"])
	assert.Equal(t, float64(0), got["count"])
	assert.Equal(t, []interface{}{}, got["transactions"])
	assert.NotContains(t, got, "ledgers")
	assert.NotContains(t, got, "cancelled")
	assert.Len(t, got["skipped"], 1)

	all := NewAssembler(ledger.Range{Start: 5, End: 5}, Selection{Kind: KindAll}).Finalize(true)
	raw, err = json.Marshal(all)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, []interface{}{}, got["ledgers"])
	assert.NotContains(t, got, "transactions")
	assert.Equal(t, true, got["cancelled"])
}

func TestLedgerCache(t *testing.T) {
	var disabled *LedgerCache
	_, _, ok := disabled.Get(1)
	assert.False(t, ok)
	disabled.Put(1, lt.LedgerV1(1), SourceArchive)
	assert.Equal(t, 0, disabled.Size())
	assert.Nil(t, NewLedgerCache(0, time.Minute))

	c := NewLedgerCache(2, time.Minute)
	c.Put(1, lt.LedgerV1(1), SourceArchive)
	c.Put(2, lt.LedgerV1(2), SourceLive)
	c.Put(3, lt.LedgerV1(3), SourceArchive)

	_, _, ok = c.Get(1)
	assert.False(t, ok, "oldest entry should be evicted")
	lcm, source, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, uint32(2), lcm.LedgerSequence())
	assert.Equal(t, SourceLive, source)

	stats := c.Stats()
	assert.Equal(t, 2, stats["total_entries"])
	assert.Equal(t, 1, stats["live_entries"])
	assert.Equal(t, uint64(1), stats["hits"])
	assert.Equal(t, uint64(1), stats["misses"])
}
