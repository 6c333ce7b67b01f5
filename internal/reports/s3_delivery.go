package reports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Upload describes a delivered export.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Checksum  string    `json:"checksum"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// S3Config holds object storage settings. Endpoint is set for S3-compatible
// providers and switches the client to path-style addressing.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	URLTTL    time.Duration
}

// S3Delivery uploads CSV exports and presigns download URLs.
type S3Delivery struct {
	client *s3.Client
	bucket string
	urlTTL time.Duration
	logger *zap.Logger
}

// NewS3Delivery creates a delivery adapter from static credentials.
func NewS3Delivery(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Delivery, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 delivery: bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Delivery{
		client: client,
		bucket: cfg.Bucket,
		urlTTL: ttl,
		logger: logger.With(zap.String("component", "s3-delivery")),
	}, nil
}

// UploadCSV stores data under key and returns a presigned GET URL.
func (s *S3Delivery) UploadCSV(ctx context.Context, key string, data []byte) (Upload, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("text/csv; charset=UTF-8"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"checksum": checksum,
		},
	})
	if err != nil {
		return Upload{}, fmt.Errorf("upload CSV: %w", err)
	}

	url, err := s.SignedURL(ctx, key)
	if err != nil {
		return Upload{}, err
	}

	s.logger.Info("uploaded report export",
		zap.String("key", key),
		zap.String("checksum", checksum),
		zap.Int("size_bytes", len(data)),
	)
	return Upload{Key: key, URL: url, Checksum: checksum, ExpiresAt: time.Now().UTC().Add(s.urlTTL)}, nil
}

// SignedURL presigns a GET request for key.
func (s *S3Delivery) SignedURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign get request: %w", err)
	}
	return req.URL, nil
}
