// Package replaystore stores opaque replay blobs in an S3-compatible
// bucket. Replays are write-once and keyed by record id; this package
// never interprets their contents.
package replaystore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config carries the R2/S3 endpoint and credentials.
type Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Store uploads and fetches replay blobs.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store against an R2-compatible endpoint.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
		config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("replaystore: load config: %w", err)
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// objectKey is the deterministic key a record's replay is stored under.
func objectKey(recordID uint64) string {
	return fmt.Sprintf("replays/%d.bin", recordID)
}

// Put uploads the replay bytes for recordID, returning the key a
// ReplayRef should be created with.
func (s *Store) Put(ctx context.Context, recordID uint64, data []byte) (string, error) {
	key := objectKey(recordID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("replaystore: put %d: %w", recordID, err)
	}
	return key, nil
}

// PresignGet returns a time-limited URL a client can download key from
// directly, without routing the replay bytes through this service.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("replaystore: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Get downloads the replay bytes stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("replaystore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("replaystore: read %s: %w", key, err)
	}
	return data, nil
}
