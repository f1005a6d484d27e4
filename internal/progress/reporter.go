package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// Label names the scan (language and n-gram size).
	Label string

	// TotalShards is the number of shards on the to-do list.
	TotalShards int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 2s
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	completedShards atomic.Int32
	failedShards    atomic.Int32
	inProgress      atomic.Int32
	lines           atomic.Int64
	skipped         atomic.Int64
	matches         atomic.Int64
	bytes           atomic.Int64

	mu        sync.Mutex
	current   string
	startTime time.Time
	lastTick  time.Time
	lastLines int64
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 2 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastTick = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[ngramstream] Scanning: %s | Shards: %s\n",
		r.opts.Label,
		humanize.Comma(int64(r.opts.TotalShards)),
	)

	go r.updateLoop()
}

// Stop prints the final summary and stops the reporter. It waits for the
// update loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// ShardStarted marks a shard as in progress.
func (r *Reporter) ShardStarted(id string) {
	r.inProgress.Add(1)
	r.mu.Lock()
	r.current = id
	r.mu.Unlock()
}

// ShardCompleted marks the current shard as done.
func (r *Reporter) ShardCompleted() {
	r.completedShards.Add(1)
	r.inProgress.Add(-1)
}

// ShardFailed marks the current shard as unavailable or incomplete.
func (r *Reporter) ShardFailed() {
	r.failedShards.Add(1)
	r.inProgress.Add(-1)
}

// LinesProcessed adds n lines parsed.
func (r *Reporter) LinesProcessed(n int) {
	r.lines.Add(int64(n))
}

// LinesSkipped adds n lines skipped because a checkpoint already covers them.
func (r *Reporter) LinesSkipped(n int) {
	r.skipped.Add(int64(n))
}

// MatchesFound adds n matches.
func (r *Reporter) MatchesFound(n int) {
	r.matches.Add(int64(n))
}

// BytesDownloaded adds n bytes fetched from the source.
func (r *Reporter) BytesDownloaded(n int64) {
	r.bytes.Add(n)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	lines := r.lines.Load()

	r.mu.Lock()
	elapsed := now.Sub(r.lastTick).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	rate := float64(lines-r.lastLines) / elapsed
	r.lastTick = now
	r.lastLines = lines
	current := r.current
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[ngramstream] Shard %s | %d / %d done | Lines: %s | Matches: %s | Rate: %slines/s\n",
		current,
		r.completedShards.Load(),
		r.opts.TotalShards,
		humanize.Comma(lines),
		humanize.Comma(r.matches.Load()),
		humanize.SIWithDigits(rate, 1, " "),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	duration := time.Since(r.startTime)

	fmt.Fprintf(r.opts.Output, "[ngramstream] Shards: %d done | %d failed | Lines: %s | Skipped: %s | Matches: %s | Downloaded: %s | Time: %s\n",
		r.completedShards.Load(),
		r.failedShards.Load(),
		humanize.Comma(r.lines.Load()),
		humanize.Comma(r.skipped.Load()),
		humanize.Comma(r.matches.Load()),
		FormatBytes(r.bytes.Load()),
		formatDuration(duration),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes with IEC units, e.g. "1.5 KiB".
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string (e.g., "256MiB" or "1MB").
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	return int64(n), nil
}
