package pipeline

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cyaom16/google-ngram-streamer/internal/match"
)

// message is one item on the writer queue: a batch of matches or a barrier.
type message struct {
	matches []match.Match
	barrier *barrier
}

// barrier asks the writer to flush and then record (shard, line).
type barrier struct {
	shard string
	line  int

	// done receives the outcome when non-nil. Buffered.
	done chan error
}

func newBarrier(shard string, line int, wait bool) *barrier {
	b := &barrier{shard: shard, line: line}
	if wait {
		b.done = make(chan error, 1)
	}
	return b
}

// writer owns the sink and the checkpoint log. It runs on one goroutine.
type writer struct {
	sink  Sink
	store Checkpointer
	log   *zap.Logger

	mu    sync.Mutex
	fatal error

	// last entry saved; a barrier repeating it only flushes
	lastShard string
	lastLine  int
}

func (w *writer) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatal
}

func (w *writer) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fatal == nil {
		w.fatal = err
	}
}

// loop consumes queue until it is closed. After a failure it keeps draining
// so producers never block on a dead consumer.
func (w *writer) loop(queue <-chan message) {
	for msg := range queue {
		if msg.barrier != nil {
			err := w.checkpoint(msg.barrier)
			if msg.barrier.done != nil {
				msg.barrier.done <- err
			}
			continue
		}
		if w.err() != nil {
			continue
		}
		for _, m := range msg.matches {
			if err := w.sink.Add(m); err != nil {
				w.fail(fmt.Errorf("write output: %w", err))
				break
			}
		}
	}
}

func (w *writer) checkpoint(b *barrier) error {
	if err := w.err(); err != nil {
		return err
	}
	if err := w.sink.Flush(); err != nil {
		err = fmt.Errorf("flush output: %w", err)
		w.fail(err)
		return err
	}
	if b.shard == w.lastShard && b.line == w.lastLine {
		return nil
	}
	if err := w.store.Save(b.shard, b.line); err != nil {
		err = fmt.Errorf("save checkpoint: %w", err)
		w.fail(err)
		return err
	}
	w.lastShard, w.lastLine = b.shard, b.line

	w.log.Debug("checkpoint saved", zap.String("shard", b.shard), zap.Int("line", b.line))
	return nil
}
