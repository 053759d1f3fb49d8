package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/filters"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledger"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/query"
)

func (s *Server) handleQuery(kind query.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		ledgerSpec := strings.TrimSpace(params.Get("ledger"))
		if ledgerSpec == "" {
			respondError(w, "ledger parameter is required (N, A-B or -N)", http.StatusBadRequest)
			return
		}

		req := query.Request{
			Ledger:   ledgerSpec,
			Kind:     kind,
			Address:  params.Get("address"),
			Function: params.Get("name"),
		}

		res, err := s.querier.QueryLedgers(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, res)
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	bal, err := s.querier.Balance(r.Context(), params.Get("address"), params.Get("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, bal)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "healthy"}
	if s.cfg.Health != nil {
		for k, v := range s.cfg.Health() {
			resp[k] = v
		}
	}
	respondJSON(w, resp)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Int("status", status),
			zap.Error(err))
	}
	respondError(w, err.Error(), status)
}

// statusFor maps malformed input to 400 and an unreachable live node to 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidRangeSpec),
		errors.Is(err, filters.ErrInvalidAddress),
		errors.Is(err, query.ErrUnknownQueryKind),
		errors.Is(err, query.ErrMissingParameter),
		errors.Is(err, livesource.ErrUnknownToken):
		return http.StatusBadRequest
	case errors.Is(err, livesource.ErrSimulationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrDependencyUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, helpPage)
}
