package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_query_queries_total",
		Help: "Total number of range queries by kind",
	}, []string{"kind"})

	ledgersFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_query_ledgers_fetched_total",
		Help: "Total number of ledgers fetched by source",
	}, []string{"source"})

	ledgersSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_query_ledgers_skipped_total",
		Help: "Total number of ledgers skipped by reason",
	}, []string{"reason"})

	liveFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_query_live_fallbacks_total",
		Help: "Total number of ledgers requested from the live node after an archive miss",
	})

	transactionsMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_query_transactions_matched_total",
		Help: "Total number of transactions returned by queries",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_query_cache_lookups_total",
		Help: "Ledger cache lookups by result",
	}, []string{"result"})

	fetchDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_query_fetch_duration_seconds",
		Help:    "Time taken to fetch and decode one ledger",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"source"})
)
