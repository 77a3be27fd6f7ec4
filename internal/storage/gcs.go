package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore for Google Cloud Storage.
type GCSStore struct {
	client *gcstorage.Client
	bucket string
}

// GCSConfig holds GCS-specific configuration.
type GCSConfig struct {
	Bucket             string
	ProjectID          string
	ServiceAccountJSON string
}

// NewGCSStore creates a new GCS object store.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// List implements ObjectStore.List.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var objects []StoredObject
	bucket := g.client.Bucket(g.bucket)

	it := bucket.Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		objects = append(objects, StoredObject{
			Name:            attrs.Name,
			Size:            attrs.Size,
			ContentType:     attrs.ContentType,
			UploadTimestamp: attrs.Updated,
			ObjectID:        attrs.Etag,
		})
	}

	return objects, nil
}

// Download implements ObjectStore.Download.
func (g *GCSStore) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", name, err)
	}
	return r, nil
}

// UploadBytes implements ObjectStore.UploadBytes.
func (g *GCSStore) UploadBytes(ctx context.Context, name string, data []byte, contentType string, attributes map[string]string) error {
	obj := g.client.Bucket(g.bucket).Object(name)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = attributes

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload of %s: %w", name, err)
	}

	return nil
}

// UploadStream implements ObjectStore.UploadStream.
func (g *GCSStore) UploadStream(ctx context.Context, name string, reader io.Reader, contentType string, attributes map[string]string) error {
	obj := g.client.Bucket(g.bucket).Object(name)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = attributes

	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload of %s: %w", name, err)
	}

	return nil
}

// Delete implements ObjectStore.Delete.
func (g *GCSStore) Delete(ctx context.Context, name string) error {
	if err := g.client.Bucket(g.bucket).Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// GetByName implements ObjectStore.GetByName.
func (g *GCSStore) GetByName(ctx context.Context, name string) (*StoredObject, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	return &StoredObject{
		Name:            attrs.Name,
		Size:            attrs.Size,
		ContentType:     attrs.ContentType,
		UploadTimestamp: attrs.Updated,
		ObjectID:        attrs.Etag,
	}, nil
}

// Close closes the GCS client connection.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// ValidateServiceAccountJSON validates the service account JSON string.
func ValidateServiceAccountJSON(jsonStr string) error {
	var sa struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &sa); err != nil {
		return fmt.Errorf("invalid service account JSON: %w", err)
	}

	if sa.Type != "service_account" {
		return fmt.Errorf("invalid service account type: %s", sa.Type)
	}

	return nil
}
