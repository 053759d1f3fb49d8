package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/archive"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/config"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/query"
)

// app holds the components built from one configuration.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	reader  *archive.Reader
	live    *livesource.Client
	cache   *query.LedgerCache
	service *query.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	var limiter *rate.Limiter
	if cfg.Query.RateLimit > 0 {
		burst := cfg.Query.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Query.RateLimit), burst)
	}

	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	schema := archive.Schema{
		PartitionSize: cfg.Archive.PartitionSize,
		BatchSize:     cfg.Archive.BatchSize,
		FileSuffix:    cfg.Archive.FileSuffix,
	}
	reader := archive.NewReader(store, schema, limiter, logger)

	live := livesource.NewClient(livesource.Options{
		Endpoint:          cfg.RPC.ArchiveURL,
		SorobanEndpoint:   cfg.RPC.SorobanURL,
		NetworkPassphrase: cfg.RPC.NetworkPassphrase,
		HTTPClient:        &http.Client{Timeout: cfg.RPC.RequestTimeout},
		Limiter:           limiter,
		BreakerThreshold:  cfg.RPC.BreakerThreshold,
		BreakerReset:      cfg.RPC.BreakerReset,
	}, logger)

	cache := query.NewLedgerCache(cfg.Query.CacheSize, cfg.Query.CacheTTL)
	orchestrator := query.NewOrchestrator(reader, live, query.OrchestratorConfig{
		NetworkPassphrase: cfg.RPC.NetworkPassphrase,
		Concurrency:       cfg.Query.Concurrency,
		Cache:             cache,
	}, logger)

	service := query.NewService(orchestrator, live, live, query.ServiceConfig{
		MaxLedgers: cfg.Query.MaxLedgers,
	}, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		reader:  reader,
		live:    live,
		cache:   cache,
		service: service,
	}, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (archive.ObjectStore, error) {
	switch cfg.Archive.Backend {
	case config.BackendHTTP:
		return archive.NewHTTPStore(cfg.Archive.BaseURL, cfg.Archive.LedgersPath,
			&http.Client{Timeout: cfg.Archive.RequestTimeout}), nil
	case config.BackendS3, config.BackendGCS:
		return archive.NewDatastoreStore(ctx, archive.DatastoreConfig{
			Type:       cfg.Archive.Backend,
			BucketPath: cfg.Archive.BucketPath,
			Region:     cfg.Archive.Region,
			Endpoint:   cfg.Archive.Endpoint,
			Schema: archive.Schema{
				PartitionSize: cfg.Archive.PartitionSize,
				BatchSize:     cfg.Archive.BatchSize,
			},
		}, logger)
	case config.BackendFS:
		return archive.NewFilesystemStore(cfg.Archive.BucketPath), nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %q", cfg.Archive.Backend)
	}
}

func (a *app) archiveLocation() string {
	if a.cfg.Archive.Backend == config.BackendHTTP {
		return a.cfg.Archive.BaseURL + "/" + a.cfg.Archive.LedgersPath
	}
	return a.cfg.Archive.BucketPath
}

func (a *app) health() map[string]interface{} {
	return map[string]interface{}{
		"archive_backend":   a.cfg.Archive.Backend,
		"archive":           a.archiveLocation(),
		"rpc_endpoint":      a.cfg.RPC.ArchiveURL,
		"live_node_breaker": a.live.BreakerState(),
		"cache":             a.cache.Stats(),
	}
}

func (a *app) Close() error {
	return a.reader.Close()
}
