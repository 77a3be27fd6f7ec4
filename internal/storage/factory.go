package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/imedwei/b2-backup-agent/internal/config"
)

// RetryConfig holds retry configuration for storage operations.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableStore wraps an ObjectStore with retry logic.
type RetryableStore struct {
	store  ObjectStore
	config RetryConfig
}

// NewRetryableStore creates a new store wrapper with retry logic.
func NewRetryableStore(store ObjectStore, config RetryConfig) *RetryableStore {
	return &RetryableStore{
		store:  store,
		config: config,
	}
}

// List implements ObjectStore.List with retry logic.
func (r *RetryableStore) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var result []StoredObject
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.store.List(ctx, prefix)
		return err
	})
	return result, err
}

// Download implements ObjectStore.Download. Only the open is retried; read
// failures on the returned stream surface to the caller.
func (r *RetryableStore) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	var result io.ReadCloser
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.store.Download(ctx, name)
		return err
	})
	return result, err
}

// UploadBytes implements ObjectStore.UploadBytes with retry logic.
func (r *RetryableStore) UploadBytes(ctx context.Context, name string, data []byte, contentType string, attributes map[string]string) error {
	return r.retry(ctx, func() error {
		return r.store.UploadBytes(ctx, name, data, contentType, attributes)
	})
}

// UploadStream implements ObjectStore.UploadStream. The reader can only be
// consumed once, so stream uploads are not retried.
func (r *RetryableStore) UploadStream(ctx context.Context, name string, reader io.Reader, contentType string, attributes map[string]string) error {
	return r.store.UploadStream(ctx, name, reader, contentType, attributes)
}

// Delete implements ObjectStore.Delete with retry logic.
func (r *RetryableStore) Delete(ctx context.Context, name string) error {
	return r.retry(ctx, func() error {
		return r.store.Delete(ctx, name)
	})
}

// GetByName implements ObjectStore.GetByName with retry logic.
func (r *RetryableStore) GetByName(ctx context.Context, name string) (*StoredObject, error) {
	var result *StoredObject
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.store.GetByName(ctx, name)
		return err
	})
	return result, err
}

// retry executes a function with exponential backoff retry logic.
func (r *RetryableStore) retry(ctx context.Context, fn func() error) error {
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if attempt == r.config.MaxAttempts {
			return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.config.Multiplier)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	return nil
}

// NewStore creates an object store based on configuration.
func NewStore(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	var store ObjectStore
	var err error

	switch cfg.StorageProvider {
	case "s3":
		s3Config := S3Config{
			KeyID:          cfg.KeyID,
			ApplicationKey: cfg.ApplicationKey,
			Region:         cfg.S3Region,
			Bucket:         cfg.Bucket,
			Endpoint:       cfg.S3Endpoint,
			UsePathStyle:   cfg.S3Endpoint != "", // Use path style for custom endpoints
		}
		store, err = NewS3Store(ctx, s3Config)

	case "gcs":
		if err := ValidateServiceAccountJSON(cfg.GoogleServiceAccountJSON); err != nil {
			return nil, fmt.Errorf("invalid GCS service account: %w", err)
		}

		gcsConfig := GCSConfig{
			Bucket:             cfg.Bucket,
			ProjectID:          cfg.GoogleProjectID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		}
		store, err = NewGCSStore(ctx, gcsConfig)

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.StorageProvider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.StorageProvider, err)
	}

	return NewRetryableStore(store, DefaultRetryConfig()), nil
}
