package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/stellar/go/support/datastore"
	"github.com/stellar/go/support/storage"
	"go.uber.org/zap"
)

// ErrObjectNotFound reports that the archive definitively does not hold an
// object, as opposed to a transient transport failure.
var ErrObjectNotFound = errors.New("archive object not found")

// ObjectStore fetches raw archive objects by path relative to the ledgers root.
type ObjectStore interface {
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
	Close() error
}

// HTTPStore reads objects anonymously from a public bucket over HTTP.
type HTTPStore struct {
	root   string
	client *http.Client
}

// NewHTTPStore creates a store rooted at baseURL/ledgersPath.
func NewHTTPStore(baseURL, ledgersPath string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	root := strings.TrimRight(baseURL, "/")
	if p := strings.Trim(ledgersPath, "/"); p != "" {
		root += "/" + p
	}
	return &HTTPStore{root: root, client: client}
}

// URL returns the full object URL for path.
func (s *HTTPStore) URL(path string) string {
	return s.root + "/" + strings.TrimLeft(path, "/")
}

func (s *HTTPStore) GetObject(ctx context.Context, path string) (io.ReadCloser, error) {
	url := s.URL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", url, ErrObjectNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

func (s *HTTPStore) Close() error { return nil }

// DatastoreStore reads objects from a Galexie bucket on S3 or GCS.
type DatastoreStore struct {
	store datastore.DataStore
}

// DatastoreConfig selects the bucket behind a DatastoreStore.
type DatastoreConfig struct {
	Type       string // "S3" or "GCS"
	BucketPath string
	Region     string
	Endpoint   string
	Schema     Schema
}

// NewDatastoreStore connects to the bucket described by cfg.
func NewDatastoreStore(ctx context.Context, cfg DatastoreConfig, logger *zap.Logger) (*DatastoreStore, error) {
	params := map[string]string{
		"destination_bucket_path": cfg.BucketPath,
	}

	storeType := strings.ToUpper(cfg.Type)
	switch storeType {
	case "GCS":
	case "S3":
		if cfg.Region != "" {
			params["region"] = cfg.Region
		}
		if cfg.Endpoint != "" {
			params["endpoint"] = cfg.Endpoint
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (use GCS or S3)", cfg.Type)
	}

	store, err := datastore.NewDataStore(ctx, datastore.DataStoreConfig{
		Type: storeType,
		Schema: datastore.DataStoreSchema{
			LedgersPerFile:    cfg.Schema.BatchSize,
			FilesPerPartition: filesPerPartition(cfg.Schema),
		},
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore: %w", err)
	}

	logger.Info("Connected to archive datastore",
		zap.String("type", storeType),
		zap.String("bucket_path", cfg.BucketPath),
		zap.String("region", cfg.Region))

	return &DatastoreStore{store: store}, nil
}

func (s *DatastoreStore) GetObject(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := s.store.GetFile(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rc, nil
}

func (s *DatastoreStore) Close() error {
	return s.store.Close()
}

// StorageStore adapts a support/storage backend, used for local filesystem
// mirrors of the archive.
type StorageStore struct {
	storage storage.Storage
}

// NewFilesystemStore serves objects from dir laid out like the bucket.
func NewFilesystemStore(dir string) *StorageStore {
	return &StorageStore{storage: storage.NewFilesystemStorage(dir)}
}

func (s *StorageStore) GetObject(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := s.storage.GetFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rc, nil
}

func (s *StorageStore) Close() error {
	return s.storage.Close()
}

func filesPerPartition(s Schema) uint32 {
	if s.BatchSize == 0 || s.PartitionSize < s.BatchSize {
		return 1
	}
	return s.PartitionSize / s.BatchSize
}
