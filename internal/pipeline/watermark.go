package pipeline

import "sync"

// watermark tracks the contiguous prefix of completed chunks of one shard.
type watermark struct {
	mu   sync.Mutex
	next int         // sequence number of the first chunk not yet completed
	line int         // last line of chunk next-1
	done map[int]int // completed chunks beyond next, by seq
}

func newWatermark(base int) *watermark {
	return &watermark{line: base, done: make(map[int]int)}
}

// complete records that chunk seq, ending at lastLine, has been matched and
// its results queued.
func (w *watermark) complete(seq, lastLine int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.done[seq] = lastLine
	for {
		l, ok := w.done[w.next]
		if !ok {
			return
		}
		delete(w.done, w.next)
		w.next++
		if l > w.line {
			w.line = l
		}
	}
}

// Line returns the highest line covered by the completed prefix.
func (w *watermark) Line() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.line
}
