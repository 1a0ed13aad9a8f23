package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visual-health-insight/internal/domain"
)

// fakeBucket serves path-style GetObject requests from memory.
type fakeBucket struct {
	objects  map[string][]byte
	requests []string
	status   int
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.requests = append(b.requests, req.Method+" "+req.URL.Path)
	if b.status != 0 {
		return &http.Response{StatusCode: b.status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet {
		if body, ok := b.objects[key]; ok {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
				"Content-Length": {fmt.Sprintf("%d", len(body))},
				"Content-Type":   {"application/octet-stream"},
			}, ContentLength: int64(len(body))}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func newFakeS3Fetcher(t *testing.T, bucket *fakeBucket, prefix string) *S3Fetcher {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
		config.WithRetryMaxAttempts(1),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	logger, _ := test.NewNullLogger()
	return NewS3FetcherWithClient(client, "health-data", prefix, logger)
}

func TestS3Fetcher_Fetch(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{
		"clinic-a/patients.json": []byte(`{"patients": {}}`),
	}}
	fetcher := newFakeS3Fetcher(t, bucket, "clinic-a")

	data, err := fetcher.Fetch(context.Background(), "patients.json")
	require.NoError(t, err)
	assert.Equal(t, `{"patients": {}}`, string(data))
	assert.Equal(t, []string{"GET /health-data/clinic-a/patients.json"}, bucket.requests)
	assert.Equal(t, "s3://health-data/clinic-a", fetcher.Describe())
}

func TestS3Fetcher_NotFound(t *testing.T) {
	fetcher := newFakeS3Fetcher(t, &fakeBucket{objects: map[string][]byte{}}, "")

	_, err := fetcher.Fetch(context.Background(), "homo_sapiens_male.svg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, err.Error(), "s3://health-data/homo_sapiens_male.svg")
}

func TestS3Fetcher_AccessDenied(t *testing.T) {
	fetcher := newFakeS3Fetcher(t, &fakeBucket{status: http.StatusForbidden}, "")

	_, err := fetcher.Fetch(context.Background(), "patients.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestNewS3Fetcher_RequiresBucket(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewS3Fetcher(context.Background(), domain.S3Config{}, logger)
	assert.Error(t, err)
}

func TestS3Fetcher_CircuitOpensOnFailures(t *testing.T) {
	bucket := &fakeBucket{status: http.StatusInternalServerError}
	fetcher := newFakeS3Fetcher(t, bucket, "")

	for i := 0; i < 3; i++ {
		_, err := fetcher.Fetch(context.Background(), "patients.json")
		require.Error(t, err)
	}

	_, err := fetcher.Fetch(context.Background(), "patients.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, bucket.requests, 3, "open breaker must not reach the bucket")
}

func TestS3Fetcher_NotFoundDoesNotTrip(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}}
	fetcher := newFakeS3Fetcher(t, bucket, "")

	for i := 0; i < 5; i++ {
		_, err := fetcher.Fetch(context.Background(), "homo_sapiens_female.svg")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	}
	assert.Len(t, bucket.requests, 5)
}
