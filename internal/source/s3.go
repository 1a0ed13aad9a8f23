package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/visual-health-insight/internal/domain"
)

// Circuit breaker settings for bucket access. Missing objects do not count as failures.
const (
	s3FailureThreshold = 3
	s3BreakerTimeout   = 30 * time.Second
)

// S3Fetcher reads dataset files from an S3-compatible bucket (AWS S3 or MinIO).
// Object keys are the file names joined to the configured prefix.
type S3Fetcher struct {
	client  *s3.Client
	bucket  string
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// NewS3Fetcher creates a fetcher using the default AWS credential chain.
func NewS3Fetcher(ctx context.Context, cfg domain.S3Config, logger *logrus.Logger) (*S3Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3FetcherWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3FetcherWithClient wraps an existing client.
func NewS3FetcherWithClient(client *s3.Client, bucket, prefix string, logger *logrus.Logger) *S3Fetcher {
	settings := gobreaker.Settings{
		Name:        "s3://" + bucket,
		MaxRequests: 1,
		Timeout:     s3BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s3FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &S3Fetcher{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch downloads the named object. Once the bucket fails repeatedly, further fetches fail
// fast until the breaker timeout elapses.
func (f *S3Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.get(ctx, f.key(name))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("s3://%s unavailable: %w", f.bucket, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (f *S3Fetcher) get(ctx context.Context, key string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &f.bucket, Key: &key})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", f.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", f.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", f.bucket, key, err)
	}
	return data, nil
}

// Describe identifies the bucket and prefix in logs.
func (f *S3Fetcher) Describe() string {
	return "s3://" + path.Join(f.bucket, f.prefix)
}

func (f *S3Fetcher) key(name string) string {
	if f.prefix == "" {
		return name
	}
	return path.Join(f.prefix, name)
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
