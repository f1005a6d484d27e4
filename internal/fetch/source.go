package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Schemes accepted by OpenBucketSource and OpenCache.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	ngramhttp "github.com/cyaom16/google-ngram-streamer/internal/http"
	"github.com/cyaom16/google-ngram-streamer/pkg/corpus"
)

// ErrUnavailable is returned when a shard cannot be retrieved from its source.
var ErrUnavailable = errors.New("fetch: shard unavailable")

// Source yields the compressed bytes of a shard by file name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// HTTPSource reads shards with one GET each, relative to a base URL.
type HTTPSource struct {
	base   string
	client *ngramhttp.Client
}

// NewHTTPSource returns a source for shards published under base.
func NewHTTPSource(base string, opts ngramhttp.Options) *HTTPSource {
	return &HTTPSource{
		base:   base,
		client: ngramhttp.NewClient(opts),
	}
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	u, err := corpus.URL(s.base, name)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Get(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, u, err)
	}
	return resp.Body, nil
}

// BucketSource reads shards from a gocloud bucket.
type BucketSource struct {
	bucket *blob.Bucket
	owned  bool
}

// NewBucketSource wraps an already open bucket. Close does not close it.
func NewBucketSource(bucket *blob.Bucket) *BucketSource {
	return &BucketSource{bucket: bucket}
}

// OpenBucketSource opens the bucket at a gocloud URL.
func OpenBucketSource(ctx context.Context, url string) (*BucketSource, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open source bucket: %w", err)
	}
	return &BucketSource{bucket: b, owned: true}, nil
}

// Open implements Source.
func (s *BucketSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, name, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s: not found", ErrUnavailable, name)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	return r, nil
}

// Close releases the bucket if this source opened it.
func (s *BucketSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}
