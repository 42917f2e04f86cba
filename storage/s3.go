package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ByLCY/adsmith/config"
)

var _ BlobStorage = (*S3Storage)(nil)

// S3Storage keeps one bucket per container on any S3-compatible service
// (AWS S3, MinIO, RustFS).
type S3Storage struct {
	client     *s3.Client
	endpoint   string
	publicBase string
	pathStyle  bool
	logger     *zap.Logger

	// 已确认存在的 bucket
	ready sync.Map
}

// S3Option configures an S3Storage.
type S3Option func(*S3Storage)

func WithLogger(logger *zap.Logger) S3Option {
	return func(s *S3Storage) { s.logger = logger }
}

// WithHTTPClient replaces the SDK's HTTP client.
func WithHTTPClient(client *http.Client) S3Option {
	return func(s *S3Storage) {
		s.client = s3.New(s.client.Options(), func(o *s3.Options) { o.HTTPClient = client })
	}
}

// NewS3Storage creates the client from cfg. The endpoint defaults to AWS when empty.
func NewS3Storage(cfg config.StorageConfig, opts ...S3Option) (*S3Storage, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	s := &S3Storage{
		client:     client,
		endpoint:   endpoint,
		publicBase: cfg.PublicBaseURL,
		pathStyle:  cfg.UsePathStyle,
		logger:     zap.NewNop(),
	}
	if s.endpoint == "" {
		s.endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBucket creates bucket unless it already exists.
func (s *S3Storage) EnsureBucket(ctx context.Context, bucket string) error {
	if _, ok := s.ready.Load(bucket); ok {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		s.ready.Store(bucket, struct{}{})
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}

	s.logger.Info("creating bucket", zap.String("bucket", bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if !errors.As(err, &owned) && !errors.As(err, &exists) {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	s.ready.Store(bucket, struct{}{})
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}
	var resp *awshttp.ResponseError
	return errors.As(err, &resp) && resp.HTTPStatusCode() == http.StatusNotFound
}

// Upload stores data in bucket container under key name.
func (s *S3Storage) Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error) {
	if err := checkContainer(container); err != nil {
		return "", err
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := s.EnsureBucket(ctx, container); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(container),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", container, name, err)
	}
	return s.URL(container, name), nil
}

// URL returns the public address of an object.
func (s *S3Storage) URL(container, name string) string {
	if s.publicBase != "" {
		return joinURL(s.publicBase, container, name)
	}
	if s.pathStyle {
		return joinURL(s.endpoint, container, name)
	}
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return joinURL(s.endpoint, container, name)
	}
	u.Host = container + "." + u.Host
	return joinURL(u.String(), name)
}
