package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cyaom16/google-ngram-streamer/internal/checkpoint"
	"github.com/cyaom16/google-ngram-streamer/internal/chunk"
	"github.com/cyaom16/google-ngram-streamer/internal/logging"
	"github.com/cyaom16/google-ngram-streamer/internal/match"
	"github.com/cyaom16/google-ngram-streamer/internal/progress"
)

// Fetcher makes shard bytes available locally.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Evict(ctx context.Context, key string) error
	Prefetch(ctx context.Context, name string)
}

// Sink receives matches. It is only called from the writer goroutine.
type Sink interface {
	Add(m match.Match) error
	Flush() error
}

// Checkpointer records durable progress. It is only called from the writer
// goroutine, after a successful Sink.Flush.
type Checkpointer interface {
	Save(shard string, line int) error
}

// Shard is one unit of work.
type Shard struct {
	// ID is the identifier written to the checkpoint log.
	ID string

	// Name is the object fetched for the shard.
	Name string
}

// Options configures a Coordinator.
type Options struct {
	// Workers is the number of matcher goroutines per shard.
	// Default: 4
	Workers int

	// MaxInFlight caps chunks dispatched but not yet matched.
	// Default: 2 * Workers
	MaxInFlight int64

	// QueueSize is the capacity of the writer queue, in messages.
	// Default: 64
	QueueSize int

	// ChunkSize is the decompressed byte budget of one chunk.
	// Default: chunk.DefaultBudget
	ChunkSize int

	// CheckpointEvery is the number of lines of watermark progress between
	// periodic checkpoints. Default: 5000
	CheckpointEvery int

	// PollInterval bounds each wait for an in-flight slot.
	// Default: 100ms
	PollInterval time.Duration

	// Prefetch downloads the next shard while the current one is scanned.
	Prefetch bool

	// Logger receives pipeline events. Default: no-op
	Logger *zap.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = int64(2 * o.Workers)
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunk.DefaultBudget
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 5000
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Summary reports the outcome of Run.
type Summary struct {
	// Completed lists shards that were read to the end.
	Completed []string

	// Unavailable lists shards that could not be fetched. They are not
	// checkpointed and will be attempted again by the next run.
	Unavailable []string

	// Incomplete lists shards whose stream was damaged part way through.
	Incomplete []string

	Lines     int64
	Skipped   int64
	Malformed int64
	Matches   int64

	// Interrupted is set when the context was cancelled before every shard
	// was handled.
	Interrupted bool
}

// Coordinator runs the scan. A Coordinator is used for a single Run.
type Coordinator struct {
	fetcher Fetcher
	matcher *match.Matcher
	opts    Options

	log  *zap.Logger
	diag *zap.Logger
	sem  *semaphore.Weighted
	w    *writer

	lines     atomic.Int64
	skipped   atomic.Int64
	malformed atomic.Int64
	matches   atomic.Int64
	inFlight  atomic.Int64
	peak      atomic.Int64
}

// New wires a coordinator. The sink and checkpointer are driven from a single
// writer goroutine and need not be safe for concurrent use.
func New(f Fetcher, m *match.Matcher, s Sink, cp Checkpointer, opts Options) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{
		fetcher: f,
		matcher: m,
		opts:    opts,
		log:     opts.Logger,
		diag:    logging.Sampled(opts.Logger, 10, 1000),
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
		w:       &writer{sink: s, store: cp, log: opts.Logger},
	}
}

// errStopped is returned by acquire when the writer has failed.
var errStopped = errors.New("pipeline: writer stopped")

// outcome is how one shard ended.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeUnavailable
	outcomeIncomplete
	outcomeInterrupted
	outcomeFailed
)

// Run processes shards in order. Lines of resume.Shard up to and including
// resume.SkipThrough are skipped. The returned error is non-nil only when
// output or checkpoint durability failed; interruption is reported through
// the summary.
func (c *Coordinator) Run(ctx context.Context, shards []Shard, resume checkpoint.Resume) (Summary, error) {
	var sum Summary

	queue := make(chan message, c.opts.QueueSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.w.loop(queue)
	}()

	for i, sh := range shards {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		var next *Shard
		if c.opts.Prefetch && i+1 < len(shards) {
			next = &shards[i+1]
		}

		out := c.runShard(ctx, queue, sh, resume.SkipFor(sh.ID), next)
		switch out {
		case outcomeDone:
			sum.Completed = append(sum.Completed, sh.ID)
		case outcomeUnavailable:
			sum.Unavailable = append(sum.Unavailable, sh.ID)
		case outcomeIncomplete:
			sum.Incomplete = append(sum.Incomplete, sh.ID)
		case outcomeInterrupted:
			sum.Interrupted = true
		}
		if out == outcomeInterrupted || out == outcomeFailed {
			break
		}
	}

	close(queue)
	<-writerDone

	if err := c.w.err(); err == nil {
		// Matches queued after the last barrier, e.g. before a failed shard
		// was abandoned, still reach disk.
		if err := c.w.sink.Flush(); err != nil {
			c.w.fail(fmt.Errorf("flush output: %w", err))
		}
	}

	sum.Lines = c.lines.Load()
	sum.Skipped = c.skipped.Load()
	sum.Malformed = c.malformed.Load()
	sum.Matches = c.matches.Load()

	if err := c.w.err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// runShard fetches, decodes and matches one shard.
func (c *Coordinator) runShard(ctx context.Context, queue chan<- message, sh Shard, skip int, next *Shard) outcome {
	log := c.log.With(zap.String("shard", sh.ID))
	c.progress(func(r *progress.Reporter) { r.ShardStarted(sh.ID) })

	key, err := c.fetcher.Fetch(ctx, sh.Name)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeInterrupted
		}
		log.Warn("shard unavailable, skipping", zap.Error(err))
		c.progress(func(r *progress.Reporter) { r.ShardFailed() })
		return outcomeUnavailable
	}
	if next != nil {
		c.fetcher.Prefetch(ctx, next.Name)
	}

	// Reads from the cache must not fail just because an interrupt arrived;
	// dispatch stops on ctx instead.
	rc, err := c.fetcher.Open(context.WithoutCancel(ctx), key)
	if err != nil {
		log.Warn("cached shard unreadable, skipping", zap.Error(err))
		c.progress(func(r *progress.Reporter) { r.ShardFailed() })
		return outcomeUnavailable
	}
	defer rc.Close()

	if skip > 0 {
		log.Info("resuming shard", zap.Int("skip_through", skip))
	} else {
		log.Info("scanning shard")
	}

	wm := newWatermark(0)
	p := pool.New().WithMaxGoroutines(c.opts.Workers)
	saved := skip
	stop := outcomeDone
	var integrity *chunk.IntegrityError

	dec, err := chunk.NewDecoder(rc, c.opts.ChunkSize)
	if err != nil {
		if !errors.As(err, &integrity) {
			integrity = &chunk.IntegrityError{Err: err}
		}
		stop = outcomeIncomplete
	}

	for dec != nil {
		if ctx.Err() != nil {
			stop = outcomeInterrupted
			break
		}
		if c.w.err() != nil {
			stop = outcomeFailed
			break
		}

		ch, err := dec.Next()
		if ch != nil {
			if ch.LastLine() <= skip {
				// Entirely covered by the checkpoint.
				c.skipped.Add(int64(ch.Lines))
				c.progress(func(r *progress.Reporter) { r.LinesSkipped(ch.Lines) })
				wm.complete(ch.Seq, ch.LastLine())
			} else if aerr := c.acquire(ctx); aerr != nil {
				if errors.Is(aerr, errStopped) {
					stop = outcomeFailed
				} else {
					stop = outcomeInterrupted
				}
				break
			} else {
				p.Go(func() {
					defer c.release()
					c.matchChunk(queue, sh, ch, skip)
					wm.complete(ch.Seq, ch.LastLine())
				})
			}

			if line := wm.Line(); line > saved && line-saved >= c.opts.CheckpointEvery {
				queue <- message{barrier: newBarrier(sh.ID, line, false)}
				saved = line
				log.Info("progress", zap.Int("line", line))
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if !errors.As(err, &integrity) {
			integrity = &chunk.IntegrityError{Line: dec.Line(), Err: err}
		}
		stop = outcomeIncomplete
		break
	}

	p.Wait()
	if dec != nil {
		dec.Close()
	}

	final := max(wm.Line(), skip)

	switch stop {
	case outcomeFailed:
		return outcomeFailed
	case outcomeInterrupted:
		if final > saved {
			if err := c.sync(queue, sh.ID, final); err != nil {
				return outcomeFailed
			}
		}
		log.Info("interrupted, progress saved", zap.Int("line", final))
		return outcomeInterrupted
	case outcomeIncomplete:
		log.Error("shard stream damaged, marking incomplete",
			zap.Int("line", final),
			zap.Error(integrity),
		)
		if err := c.sync(queue, sh.ID, final); err != nil {
			return outcomeFailed
		}
		if err := c.fetcher.Evict(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("evict damaged cache entry", zap.Error(err))
		}
		c.progress(func(r *progress.Reporter) { r.ShardFailed() })
		return outcomeIncomplete
	}

	if err := c.sync(queue, sh.ID, final); err != nil {
		return outcomeFailed
	}
	log.Info("shard done", zap.Int("lines", final))
	c.progress(func(r *progress.Reporter) { r.ShardCompleted() })
	return outcomeDone
}

// matchChunk runs on a pool goroutine.
func (c *Coordinator) matchChunk(queue chan<- message, sh Shard, ch *chunk.Chunk, skip int) {
	res := c.matcher.Match(ch, skip)

	for _, m := range res.Malformed {
		c.diag.Warn("malformed record",
			zap.String("shard", sh.ID),
			zap.Int("line", m.Line),
			zap.String("reason", m.Reason),
		)
	}

	c.lines.Add(int64(res.Processed))
	c.skipped.Add(int64(res.Skipped))
	c.malformed.Add(int64(len(res.Malformed)))
	c.matches.Add(int64(len(res.Matches)))
	c.progress(func(r *progress.Reporter) {
		r.LinesProcessed(res.Processed)
		r.LinesSkipped(res.Skipped)
		r.MatchesFound(len(res.Matches))
	})

	if len(res.Matches) > 0 {
		queue <- message{matches: res.Matches}
	}
}

// sync queues a barrier and waits for the writer to reach it.
func (c *Coordinator) sync(queue chan<- message, shard string, line int) error {
	b := newBarrier(shard, line, true)
	queue <- message{barrier: b}
	return <-b.done
}

// acquire takes an in-flight slot, polling with a bounded wait so that
// cancellation and writer failures are noticed while the ceiling is reached.
func (c *Coordinator) acquire(ctx context.Context) error {
	for {
		actx, cancel := context.WithTimeout(ctx, c.opts.PollInterval)
		err := c.sem.Acquire(actx, 1)
		cancel()
		if err == nil {
			n := c.inFlight.Add(1)
			for {
				p := c.peak.Load()
				if n <= p || c.peak.CompareAndSwap(p, n) {
					break
				}
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.w.err() != nil {
			return errStopped
		}
	}
}

func (c *Coordinator) release() {
	c.inFlight.Add(-1)
	c.sem.Release(1)
}

// PeakInFlight returns the highest number of chunks that were dispatched but
// not yet matched at the same time.
func (c *Coordinator) PeakInFlight() int64 {
	return c.peak.Load()
}

func (c *Coordinator) progress(fn func(r *progress.Reporter)) {
	if c.opts.Progress != nil {
		fn(c.opts.Progress)
	}
}
