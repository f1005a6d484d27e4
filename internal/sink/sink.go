// Package sink writes matched records to one append-only table per group.
//
// Each group gets its own tab-separated file with a fixed header:
//
//	ngram	year	match_count	volume_count
//
// Records are buffered in memory and written by Flush. A Sink must only be
// used from one goroutine; the pipeline funnels every producer through a
// single writer goroutine that owns it.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cyaom16/google-ngram-streamer/internal/match"
)

// Header is the first row of every group file.
var Header = []string{"ngram", "year", "match_count", "volume_count"}

// DefaultFlushThreshold is the number of buffered rows that forces a flush.
const DefaultFlushThreshold = 100_000

// WriteError reports an output failure for one group.
type WriteError struct {
	Group string
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sink: write group %q (%s): %v", e.Group, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Options configures a Sink.
type Options struct {
	// FlushThreshold is the number of buffered rows across all groups that
	// triggers a flush from Add. Default: DefaultFlushThreshold
	FlushThreshold int

	// Logger receives flush diagnostics. Default: no-op
	Logger *zap.Logger
}

// groupFile is the open output of one group.
type groupFile struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	w    *csv.Writer
}

// Sink buffers matches and appends them to per-group files.
type Sink struct {
	dir  string
	opts Options

	pending  map[string][]match.Record
	buffered int
	files    map[string]*groupFile
	written  int64
}

// New creates a sink writing into dir, creating it if needed.
func New(dir string, opts Options) (*Sink, error) {
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create output dir: %w", err)
	}

	return &Sink{
		dir:     dir,
		opts:    opts,
		pending: make(map[string][]match.Record),
		files:   make(map[string]*groupFile),
	}, nil
}

// FileName returns the file name used for group.
func FileName(group string) string {
	return "ngram_match_" + strings.ReplaceAll(group, " ", "_") + ".tsv"
}

// Path returns the full path of group's output file.
func (s *Sink) Path(group string) string {
	return filepath.Join(s.dir, FileName(group))
}

// Add buffers one match. It flushes once the buffer reaches the threshold; a
// flush error is returned and the buffer is kept.
func (s *Sink) Add(m match.Match) error {
	s.pending[m.Group] = append(s.pending[m.Group], m.Record)
	s.buffered++
	if s.buffered >= s.opts.FlushThreshold {
		return s.Flush()
	}
	return nil
}

// Buffered returns the number of rows waiting to be flushed.
func (s *Sink) Buffered() int {
	return s.buffered
}

// Written returns the number of rows flushed so far.
func (s *Sink) Written() int64 {
	return s.written
}

// Flush writes every buffered row and syncs the touched files. Groups that
// were written successfully are removed from the buffer even if a later group
// fails, so a retry never writes them twice.
func (s *Sink) Flush() error {
	if s.buffered == 0 {
		return nil
	}

	groups := make([]string, 0, len(s.pending))
	for g := range s.pending {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		rows := s.pending[g]
		if err := s.writeGroup(g, rows); err != nil {
			return err
		}
		delete(s.pending, g)
		s.buffered -= len(rows)
		s.written += int64(len(rows))
	}

	s.opts.Logger.Debug("flushed matches", zap.Int("groups", len(groups)), zap.Int64("total_written", s.written))
	return nil
}

func (s *Sink) writeGroup(group string, rows []match.Record) error {
	gf, err := s.open(group)
	if err != nil {
		return err
	}

	record := make([]string, 4)
	for _, r := range rows {
		record[0] = r.Ngram
		record[1] = strconv.FormatInt(r.Year, 10)
		record[2] = strconv.FormatInt(r.MatchCount, 10)
		record[3] = strconv.FormatInt(r.VolumeCount, 10)
		if err := gf.w.Write(record); err != nil {
			return &WriteError{Group: group, Path: gf.path, Err: err}
		}
	}

	gf.w.Flush()
	if err := gf.w.Error(); err != nil {
		return &WriteError{Group: group, Path: gf.path, Err: err}
	}
	if err := gf.bw.Flush(); err != nil {
		return &WriteError{Group: group, Path: gf.path, Err: err}
	}
	if err := gf.f.Sync(); err != nil {
		return &WriteError{Group: group, Path: gf.path, Err: err}
	}
	return nil
}

// open returns the group's file, creating it with a header if it is new or
// empty.
func (s *Sink) open(group string) (*groupFile, error) {
	if gf, ok := s.files[group]; ok {
		return gf, nil
	}

	path := s.Path(group)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &WriteError{Group: group, Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &WriteError{Group: group, Path: path, Err: err}
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	w := csv.NewWriter(bw)
	w.Comma = '\t'
	gf := &groupFile{path: path, f: f, bw: bw, w: w}

	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			f.Close()
			return nil, &WriteError{Group: group, Path: path, Err: err}
		}
	}

	s.files[group] = gf
	return gf, nil
}

// Close flushes the buffer and closes every file.
func (s *Sink) Close() error {
	err := s.Flush()
	for g, gf := range s.files {
		if cerr := gf.f.Close(); cerr != nil && err == nil {
			err = &WriteError{Group: g, Path: gf.path, Err: cerr}
		}
		delete(s.files, g)
	}
	return err
}
