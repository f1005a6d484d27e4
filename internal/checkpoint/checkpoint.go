package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Version is the log format written by this package.
const Version = 1

const headerPrefix = "# ngramstream checkpoint v"

// ErrVersion is returned for logs written in an unknown format.
var ErrVersion = errors.New("checkpoint: unsupported version")

// ErrCorrupt is returned for logs with malformed entries.
var ErrCorrupt = errors.New("checkpoint: corrupt log")

// Entry is one logged save.
type Entry struct {
	Shard string
	Line  int
}

// Checkpoint is the effective progress recorded by a log.
type Checkpoint struct {
	// Shard and Line come from the final entry: every line of Shard up to and
	// including Line has been processed and its matches flushed.
	Shard string
	Line  int

	// Completed holds every other logged shard, in first-logged order.
	Completed []string

	// Last holds the last logged line of every shard.
	Last map[string]int
}

// IsCompleted reports whether shard was followed by a different shard in the log.
func (c *Checkpoint) IsCompleted(shard string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.Completed {
		if id == shard {
			return true
		}
	}
	return false
}

// Store appends entries to a checkpoint log.
type Store struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open opens the log at path for appending, creating it (and its directory)
// with a version header if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("checkpoint: create dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("checkpoint: stat: %w", err)
	}
	size := info.Size()
	if size > 0 {
		if size, err = repairTail(f, size); err != nil {
			f.Close()
			return nil, err
		}
	}
	if size == 0 {
		if _, err := fmt.Fprintf(f, "%s%d\n", headerPrefix, Version); err != nil {
			f.Close()
			return nil, fmt.Errorf("checkpoint: write header: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("checkpoint: sync: %w", err)
		}
	}

	return &Store{path: path, f: f}, nil
}

// repairTail makes sure the next append starts on a fresh line. An
// unterminated final entry that Load accepts is terminated so the file keeps
// saying what Load reported; a malformed one is cut off. It returns the new
// size.
func repairTail(f *os.File, size int64) (int64, error) {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("checkpoint: read tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return 0, fmt.Errorf("checkpoint: read tail: %w", err)
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)

	if _, ok, err := parseLine(string(data[keep:])); err == nil && ok {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return 0, fmt.Errorf("checkpoint: terminate entry: %w", err)
		}
		size++
	} else {
		if err := f.Truncate(keep); err != nil {
			return 0, fmt.Errorf("checkpoint: drop torn entry: %w", err)
		}
		size = keep
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("checkpoint: sync: %w", err)
	}
	return size, nil
}

// Path returns the log location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the log and returns the effective checkpoint, or nil if nothing
// has been saved yet.
func (s *Store) Load() (*Checkpoint, error) {
	return Load(s.path)
}

// Save appends one entry and syncs it to disk.
func (s *Store) Save(shard string, line int) error {
	if shard == "" || strings.ContainsAny(shard, " \t\n") {
		return fmt.Errorf("checkpoint: invalid shard id %q", shard)
	}
	if line < 0 {
		return fmt.Errorf("checkpoint: negative line %d", line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return errors.New("checkpoint: store is closed")
	}
	if _, err := fmt.Fprintf(s.f, "%s %d\n", shard, line); err != nil {
		return fmt.Errorf("checkpoint: append: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("checkpoint: sync: %w", err)
	}
	return nil
}

// Close closes the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Load reads the log at path. A missing file is not an error.
func Load(path string) (*Checkpoint, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries), nil
}

// ReadEntries returns every entry of the log at path in file order.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	// A file ending in '\n' splits into a trailing empty element; anything
	// else in that position is an unterminated final line.
	tail := lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var entries []Entry
	for i, raw := range lines {
		e, ok, err := parseLine(raw)
		if errors.Is(err, ErrVersion) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, i+1, err)
		}
		if ok {
			entries = append(entries, e)
		}
	}

	// Crash mid-append leaves a torn final line; that entry never became
	// durable, so a malformed tail is dropped rather than rejected.
	if e, ok, err := parseLine(tail); err == nil && ok {
		entries = append(entries, e)
	} else if errors.Is(err, ErrVersion) {
		return nil, err
	}
	return entries, nil
}

// parseLine parses one log line. ok is false for blank and comment lines.
func parseLine(raw string) (e Entry, ok bool, err error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Entry{}, false, nil
	}
	if strings.HasPrefix(text, "#") {
		if strings.HasPrefix(text, headerPrefix) {
			v, err := strconv.Atoi(strings.TrimPrefix(text, headerPrefix))
			if err != nil || v != Version {
				return Entry{}, false, fmt.Errorf("%w: %q", ErrVersion, text)
			}
		}
		return Entry{}, false, nil
	}
	e, err = parseEntry(text)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func parseEntry(text string) (Entry, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Entry{}, fmt.Errorf("expected 2 fields, got %d", len(fields))
	}
	line, err := strconv.Atoi(fields[1])
	if err != nil || line < 0 {
		return Entry{}, fmt.Errorf("bad line number %q", fields[1])
	}
	return Entry{Shard: fields[0], Line: line}, nil
}

// FromEntries derives the effective checkpoint from log entries. It returns
// nil for an empty log.
func FromEntries(entries []Entry) *Checkpoint {
	if len(entries) == 0 {
		return nil
	}

	final := entries[len(entries)-1]
	cp := &Checkpoint{
		Shard: final.Shard,
		Line:  final.Line,
		Last:  make(map[string]int),
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		cp.Last[e.Shard] = e.Line
		if e.Shard != final.Shard && !seen[e.Shard] {
			cp.Completed = append(cp.Completed, e.Shard)
		}
		seen[e.Shard] = true
	}
	return cp
}

// Resume is where processing picks up within the to-do list.
type Resume struct {
	// Shard is the shard whose lines up to SkipThrough are already done.
	// Empty when starting fresh.
	Shard       string
	SkipThrough int
}

// SkipFor returns the number of leading lines of shard to skip.
func (r Resume) SkipFor(shard string) int {
	if shard == r.Shard {
		return r.SkipThrough
	}
	return 0
}

// Plan removes completed shards from ids. The checkpoint's current shard is
// kept, even though it was logged, so its tail gets processed.
func Plan(ids []string, cp *Checkpoint) ([]string, Resume) {
	if cp == nil {
		return append([]string(nil), ids...), Resume{}
	}

	todo := make([]string, 0, len(ids))
	for _, id := range ids {
		if !cp.IsCompleted(id) {
			todo = append(todo, id)
		}
	}
	return todo, Resume{Shard: cp.Shard, SkipThrough: cp.Line}
}
