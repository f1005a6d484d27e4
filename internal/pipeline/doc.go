// Package pipeline drives a resumable scan over a list of shards.
//
// For each shard the [Coordinator] fetches the compressed bytes, decodes them
// into line-aligned chunks, and hands every chunk to a bounded pool of
// matcher goroutines. Matches travel over a bounded queue to a single writer
// goroutine, which is the only code that touches the result sink and the
// checkpoint log.
//
// # Backpressure
//
// A weighted semaphore caps the number of chunks that are dispatched but not
// yet matched. The dispatcher polls for a slot with a bounded wait so it
// notices cancellation and writer failures while the ceiling is reached.
// Workers block on the queue when the writer falls behind.
//
// # Checkpoints
//
// Chunks finish out of order. A watermark tracks the highest line L such
// that every chunk ending at or before L has been matched and its matches
// queued. A checkpoint barrier for (shard, L) is queued behind those matches;
// when the writer reaches it, it flushes the sink and only then appends the
// entry to the log. Barriers are sent every CheckpointEvery lines of
// watermark progress, at the end of each shard, after a decode integrity
// failure and on interrupt.
//
// # Interrupt
//
// Cancelling the context passed to Run stops dispatch. Chunks already handed
// to workers are finished, the sink is flushed, and the current position is
// saved before Run returns with Summary.Interrupted set and a nil error.
package pipeline
