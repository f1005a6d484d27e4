package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
	"golang.org/x/sync/singleflight"
)

// Options configures a Fetcher.
type Options struct {
	Logger *zap.Logger
}

// Option is a functional option for configuring a Fetcher.
type Option func(*Options)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Fetcher downloads shards into a cache bucket.
type Fetcher struct {
	cache  *blob.Bucket
	source Source
	log    *zap.Logger

	group singleflight.Group
	bg    conc.WaitGroup

	mu         sync.Mutex
	prefetched map[string]<-chan singleflight.Result
}

// New returns a fetcher that caches shards from source in cache.
func New(cache *blob.Bucket, source Source, opts ...Option) *Fetcher {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return &Fetcher{
		cache:      cache,
		source:     source,
		log:        o.Logger,
		prefetched: make(map[string]<-chan singleflight.Result),
	}
}

// OpenCache opens (and creates) a file-backed cache bucket rooted at dir.
// Temporary files live next to the cached objects so publishing is a rename
// within one filesystem.
func OpenCache(dir string) (*blob.Bucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return b, nil
}

// Fetch ensures the shard is cached. It returns the cache key, which is the
// shard's file name. An existing entry is returned without touching the source.
func (f *Fetcher) Fetch(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	ch, ok := f.prefetched[name]
	delete(f.prefetched, name)
	f.mu.Unlock()

	if ok {
		select {
		case res := <-ch:
			if res.Err == nil {
				return name, nil
			}
			// A prefetch cancelled by its own context is retried on the
			// caller's. Any other failure stands.
			if !isContextErr(res.Err) || ctx.Err() != nil {
				return "", res.Err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	_, err, _ := f.group.Do(name, func() (any, error) {
		return nil, f.fetch(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// Prefetch starts fetching name in the background. The result is picked up
// by the next Fetch of the same name.
func (f *Fetcher) Prefetch(ctx context.Context, name string) {
	f.mu.Lock()
	if _, ok := f.prefetched[name]; ok {
		f.mu.Unlock()
		return
	}
	ch := make(chan singleflight.Result, 1)
	f.prefetched[name] = ch
	f.mu.Unlock()

	f.bg.Go(func() {
		_, err, _ := f.group.Do(name, func() (any, error) {
			return nil, f.fetch(ctx, name)
		})
		ch <- singleflight.Result{Err: err}
	})
}

// Wait blocks until every background prefetch has returned.
func (f *Fetcher) Wait() {
	f.bg.Wait()
}

// Cached reports whether name is present in the cache.
func (f *Fetcher) Cached(ctx context.Context, name string) (bool, error) {
	return f.cache.Exists(ctx, name)
}

// Open returns a reader over a cached shard.
func (f *Fetcher) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := f.cache.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open cached %s: %w", key, err)
	}
	return r, nil
}

// Evict removes a cache entry so the next run downloads it again. A missing
// entry is not an error.
func (f *Fetcher) Evict(ctx context.Context, key string) error {
	err := f.cache.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("evict %s: %w", key, err)
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (f *Fetcher) fetch(ctx context.Context, name string) error {
	ok, err := f.cache.Exists(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("check cache %s: %w", name, err)
	}
	if ok {
		f.log.Debug("cache hit", zap.String("shard", name))
		return nil
	}

	f.log.Info("downloading shard", zap.String("shard", name))

	src, err := f.source.Open(ctx, name)
	if err != nil {
		return err
	}
	defer src.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := f.cache.NewWriter(wctx, name, &blob.WriterOptions{ContentType: "application/gzip"})
	if err != nil {
		return fmt.Errorf("create cache writer %s: %w", name, err)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		// Cancel before Close so the partial object is discarded.
		cancel()
		w.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	if err := w.Close(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("publish cache %s: %w", name, err)
	}

	f.log.Info("shard cached",
		zap.String("shard", name),
		zap.String("size", humanize.IBytes(uint64(n))),
	)
	return nil
}
