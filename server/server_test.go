package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/query"
)

type fakeQuerier struct {
	got query.Request
	err error

	balanceErr error
}

func (f *fakeQuerier) QueryLedgers(ctx context.Context, req query.Request) (*query.AggregateResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	asm := query.NewAssembler(ledger.Range{Start: 10, End: 12}, query.Selection{Kind: req.Kind, Address: req.Address})
	asm.AddTransactions([]query.TransactionItem{{LedgerSequence: 11, Hash: "ab"}})
	return asm.Finalize(false), nil
}

func (f *fakeQuerier) Balance(ctx context.Context, address, token string) (*livesource.Balance, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &livesource.Balance{Address: address, Token: token, Balance: "1.0000000"}, nil
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryRoutes(t *testing.T) {
	tests := []struct {
		target   string
		wantKind query.Kind
	}{
		{"/all?ledger=10-12", query.KindAll},
		{"/transactions?ledger=10-12", query.KindTransactions},
		{"/address?ledger=10-12&address=GABC", query.KindAddress},
		{"/contract?ledger=10-12&address=CABC", query.KindContract},
		{"/function?ledger=10-12&name=work", query.KindFunction},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			q := &fakeQuerier{}
			rec := do(t, New(q, Config{}, nil).Handler(), http.MethodGet, tt.target)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
			assert.Equal(t, tt.wantKind, q.got.Kind)
			assert.Equal(t, "10-12", q.got.Ledger)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, float64(1), body["ledgers_processed"])
		})
	}
}

func TestQueryParametersPassedThrough(t *testing.T) {
	q := &fakeQuerier{}
	h := New(q, Config{}, nil).Handler()

	do(t, h, http.MethodGet, "/function?ledger=-5&name=plant&address=ignored")
	assert.Equal(t, "-5", q.got.Ledger)
	assert.Equal(t, "plant", q.got.Function)

	do(t, h, http.MethodGet, "/transactions?ledger=7&address=GXYZ")
	assert.Equal(t, "GXYZ", q.got.Address)
}

func TestMissingLedgerParameter(t *testing.T) {
	q := &fakeQuerier{}
	rec := do(t, New(q, Config{}, nil).Handler(), http.MethodGet, "/transactions")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger parameter is required")
	assert.Empty(t, q.got.Ledger, "querier must not be called")
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: start after end", ledger.ErrInvalidRangeSpec), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", filters.ErrInvalidAddress), http.StatusBadRequest},
		{fmt.Errorf("%w: address", query.ErrMissingParameter), http.StatusBadRequest},
		{query.ErrUnknownQueryKind, http.StatusBadRequest},
		{fmt.Errorf("%w: connection refused", ledger.ErrDependencyUnavailable), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			q := &fakeQuerier{err: tt.err}
			rec := do(t, New(q, Config{}, nil).Handler(), http.MethodGet, "/all?ledger=1")

			assert.Equal(t, tt.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestBalanceRoute(t *testing.T) {
	h := New(&fakeQuerier{}, Config{}, nil).Handler()
	rec := do(t, h, http.MethodGet, "/balance?address=GABC&token=xlm")
	require.Equal(t, http.StatusOK, rec.Code)

	var bal livesource.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, "GABC", bal.Address)
	assert.Equal(t, "xlm", bal.Token)

	h = New(&fakeQuerier{balanceErr: fmt.Errorf("%w: doge", livesource.ErrUnknownToken)}, Config{}, nil).Handler()
	rec = do(t, h, http.MethodGet, "/balance?address=GABC&token=doge")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = New(&fakeQuerier{balanceErr: fmt.Errorf("%w: trustline entry is missing", livesource.ErrSimulationFailed)}, Config{}, nil).Handler()
	rec = do(t, h, http.MethodGet, "/balance?address=GABC&token=usdc")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreflight(t *testing.T) {
	rec := do(t, New(&fakeQuerier{}, Config{}, nil).Handler(), http.MethodOptions, "/transactions")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestRequestIDEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	New(&fakeQuerier{}, Config{}, nil).Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestHealthHelpAndNotFound(t *testing.T) {
	h := New(&fakeQuerier{}, Config{Health: func() map[string]interface{} {
		return map[string]interface{}{"live_node_breaker": "closed"}
	}}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "closed", health["live_node_breaker"])

	rec = do(t, h, http.MethodGet, "/help")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/transactions")

	rec = do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/help")
}
