package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements ObjectStore for any S3-compatible service.
// Backblaze B2 is reached through its S3-compatible endpoint.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// S3Config holds S3-specific configuration.
type S3Config struct {
	KeyID          string
	ApplicationKey string
	Region         string
	Bucket         string
	Endpoint       string // Optional custom endpoint, e.g. B2's s3.<region>.backblazeb2.com
	UsePathStyle   bool   // For S3-compatible services
}

// NewS3Store creates a new S3-compatible object store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.ApplicationKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.UsePathStyle
		},
	}

	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// List implements ObjectStore.List.
func (s *S3Store) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var objects []StoredObject
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, StoredObject{
				Name:            aws.ToString(obj.Key),
				Size:            aws.ToInt64(obj.Size),
				UploadTimestamp: aws.ToTime(obj.LastModified),
				ObjectID:        aws.ToString(obj.ETag),
				// ContentType requires a separate HEAD request; see GetByName.
			})
		}
	}

	return objects, nil
}

// Download implements ObjectStore.Download.
func (s *S3Store) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", name, err)
	}
	return out.Body, nil
}

// UploadBytes implements ObjectStore.UploadBytes.
func (s *S3Store) UploadBytes(ctx context.Context, name string, data []byte, contentType string, attributes map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// UploadStream implements ObjectStore.UploadStream. The uploader splits the
// stream into multipart chunks, so the reader's length need not be known.
func (s *S3Store) UploadStream(ctx context.Context, name string, reader io.Reader, contentType string, attributes map[string]string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        reader,
		ContentType: aws.String(contentType),
		Metadata:    attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// Delete implements ObjectStore.Delete.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// GetByName implements ObjectStore.GetByName.
func (s *S3Store) GetByName(ctx context.Context, name string) (*StoredObject, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	return &StoredObject{
		Name:            name,
		Size:            aws.ToInt64(head.ContentLength),
		ContentType:     aws.ToString(head.ContentType),
		UploadTimestamp: aws.ToTime(head.LastModified),
		ObjectID:        aws.ToString(head.ETag),
	}, nil
}
