// Package objectstore stores product images in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

var _ product.ObjectStore = (*Store)(nil)

// Config describes the bucket and how to reach it.
type Config struct {
	Endpoint     string `usage:"S3 endpoint, empty for AWS"`
	Region       string `default:"us-east-1" usage:"S3 region"`
	Bucket       string `default:"product-images" usage:"Bucket for product images"`
	AccessKey    string `usage:"S3 access key" flag:"s3-access-key"`
	SecretKey    string `usage:"S3 secret key" flag:"s3-secret-key"`
	UsePathStyle bool   `default:"true" usage:"Use path-style addressing (MinIO and similar)" flag:"s3-path-style"`
	// PublicBaseURL prefixes object keys to build public URLs. When empty
	// URLs are derived from Endpoint and Bucket.
	PublicBaseURL string `usage:"Public base URL for stored images" flag:"s3-public-url"`
}

// Validate checks the configuration required to build a client.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("storage bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("storage access key and secret key are required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return errors.Wrap(err, "parse storage endpoint")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Errorf("storage endpoint %q must be http or https", c.Endpoint)
		}
	}
	return nil
}

// Store implements product.ObjectStore on top of an S3 client.
type Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// Option configures a Store.
type Option func(*s3.Options)

// WithHTTPClient overrides the HTTP client used by the SDK.
func WithHTTPClient(c aws.HTTPClient) Option {
	return func(o *s3.Options) { o.HTTPClient = c }
}

// New creates a Store from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, opt := range opts {
			opt(o)
		}
	})

	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
	}, nil
}

// publicBaseURL returns the prefix that object keys are appended to.
func publicBaseURL(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if cfg.Endpoint != "" {
		base := strings.TrimRight(cfg.Endpoint, "/")
		if cfg.UsePathStyle {
			return base + "/" + cfg.Bucket
		}
		u, err := url.Parse(base)
		if err == nil {
			u.Host = cfg.Bucket + "." + u.Host
			return u.String()
		}
		return base + "/" + cfg.Bucket
	}
	return "https://" + cfg.Bucket + ".s3." + cfg.Region + ".amazonaws.com"
}

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var (
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return errors.Wrap(err, "head bucket")
	}

	zctx.From(ctx).Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return errors.Wrap(err, "create bucket")
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return errors.Wrap(err, "head bucket")
	}
	return nil
}

// Put uploads data under key and returns its public URL.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", errors.Wrapf(err, "put object %q", key)
	}
	return s.URL(key), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "delete object %q", key)
	}
	return nil
}
