package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyaom16/google-ngram-streamer/internal/logging"
	"github.com/cyaom16/google-ngram-streamer/internal/match"
	"github.com/cyaom16/google-ngram-streamer/internal/progress"
	"github.com/cyaom16/google-ngram-streamer/internal/sink"
	"github.com/cyaom16/google-ngram-streamer/pkg/corpus"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config defines configuration for the ngramstream CLI.
type Config struct {
	Language  string   `yaml:"language"`
	NgramSize int      `yaml:"ngram_size"`
	Version   string   `yaml:"version"`
	Shards    []string `yaml:"shards"`
	Limit     int      `yaml:"limit"`

	SourceURL    string `yaml:"source_url"`
	SourceBucket string `yaml:"source_bucket"`
	CacheDir     string `yaml:"cache_dir"`
	OutputDir    string `yaml:"output_dir"`
	Checkpoint   string `yaml:"checkpoint"`

	Workers         int           `yaml:"workers"`
	MaxInFlight     int           `yaml:"max_in_flight"`
	QueueSize       int           `yaml:"queue_size"`
	ChunkSize       int64         `yaml:"chunk_size"`
	CheckpointEvery int           `yaml:"checkpoint_every"`
	FlushThreshold  int           `yaml:"flush_threshold"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	NoPrefetch      bool          `yaml:"no_prefetch"`
	Progress        bool          `yaml:"progress"`

	HTTP HTTPConfig `yaml:"http"`
	Log  LogConfig  `yaml:"log"`

	Groups map[string][]string `yaml:"groups"`
}

// HTTPConfig defines source transport behavior.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// LogConfig selects the logger level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultGroups is the match-group table used when none is configured.
func DefaultGroups() map[string][]string {
	return map[string][]string{
		"labour":        {"labour party"},
		"liberal":       {"liberal party"},
		"conservative":  {"conservative party"},
		"republican":    {"republican", "republicans", "gop"},
		"democrat":      {"democrat", "democrats", "democratic party"},
		"communism":     {"communism", "communist", "communists"},
		"mccarthyism":   {"mccarthyism"},
		"feminism":      {"feminism", "feminist"},
		"technology":    {"technology"},
		"science":       {"science"},
		"economics":     {"economics"},
		"war":           {"war"},
		"computer":      {"computer", "computers"},
		"electricity":   {"electricity"},
		"steam engine":  {"steam engine", "steam engines"},
		"socialism":     {"socialism", "socialist", "socialists"},
		"colonialism":   {"colonialism", "colonialist", "colonialists"},
		"fascism":       {"fascism", "fascist", "fascists"},
		"protectionism": {"protectionism", "protectionist", "protectionists"},
	}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Language:        "eng",
		NgramSize:       5,
		Version:         corpus.DefaultVersion,
		SourceURL:       corpus.DefaultSource,
		CacheDir:        "./cache",
		OutputDir:       "./ngram_match",
		Workers:         8,
		MaxInFlight:     16,
		QueueSize:       64,
		ChunkSize:       1024 * 1024, // 1MiB
		CheckpointEvery: 5000,
		FlushThreshold:  sink.DefaultFlushThreshold,
		PollInterval:    100 * time.Millisecond,
		HTTP: HTTPConfig{
			Timeout: 60 * time.Second,
			Retry: RetryConfig{
				Attempts:   0,
				Backoff:    time.Second,
				MaxBackoff: 30 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Groups: DefaultGroups(),
	}
}

// CheckpointPath returns the configured checkpoint file, or the
// per-corpus default log_<lang>_<n>gram.txt.
func (c *Config) CheckpointPath() string {
	if c.Checkpoint != "" {
		return c.Checkpoint
	}
	return fmt.Sprintf("log_%s_%dgram.txt", c.Language, c.NgramSize)
}

// OutputPath returns the directory match tables are written to.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("%s_%dgram", c.Language, c.NgramSize))
}

// MatchGroups returns the configured groups in name order.
func (c *Config) MatchGroups() []match.Group {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]match.Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, match.Group{
			Name:     name,
			Triggers: append([]string(nil), c.Groups[name]...),
		})
	}
	return groups
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Language  string   `yaml:"language"`
	NgramSize int      `yaml:"ngram_size"`
	Version   string   `yaml:"version"`
	Shards    []string `yaml:"shards"`
	Limit     int      `yaml:"limit"`

	SourceURL    string `yaml:"source_url"`
	SourceBucket string `yaml:"source_bucket"`
	CacheDir     string `yaml:"cache_dir"`
	OutputDir    string `yaml:"output_dir"`
	Checkpoint   string `yaml:"checkpoint"`

	Workers         int    `yaml:"workers"`
	MaxInFlight     int    `yaml:"max_in_flight"`
	QueueSize       int    `yaml:"queue_size"`
	ChunkSize       string `yaml:"chunk_size"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	FlushThreshold  int    `yaml:"flush_threshold"`
	PollInterval    string `yaml:"poll_interval"`
	NoPrefetch      bool   `yaml:"no_prefetch"`
	Progress        bool   `yaml:"progress"`

	HTTP yamlHTTPConfig `yaml:"http"`
	Log  LogConfig      `yaml:"log"`

	Groups map[string][]string `yaml:"groups"`
}

type yamlHTTPConfig struct {
	Timeout string          `yaml:"timeout"`
	Retry   yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	override := Config{
		Language:        yc.Language,
		NgramSize:       yc.NgramSize,
		Version:         yc.Version,
		Shards:          yc.Shards,
		Limit:           yc.Limit,
		SourceURL:       yc.SourceURL,
		SourceBucket:    yc.SourceBucket,
		CacheDir:        yc.CacheDir,
		OutputDir:       yc.OutputDir,
		Checkpoint:      yc.Checkpoint,
		Workers:         yc.Workers,
		MaxInFlight:     yc.MaxInFlight,
		QueueSize:       yc.QueueSize,
		CheckpointEvery: yc.CheckpointEvery,
		FlushThreshold:  yc.FlushThreshold,
		NoPrefetch:      yc.NoPrefetch,
		Progress:        yc.Progress,
		HTTP: HTTPConfig{
			Retry: RetryConfig{Attempts: yc.HTTP.Retry.Attempts},
		},
		Log:    yc.Log,
		Groups: yc.Groups,
	}

	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		override.ChunkSize = size
	}

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"poll_interval", yc.PollInterval, &override.PollInterval},
		{"http.timeout", yc.HTTP.Timeout, &override.HTTP.Timeout},
		{"http.retry.backoff", yc.HTTP.Retry.Backoff, &override.HTTP.Retry.Backoff},
		{"http.retry.max_backoff", yc.HTTP.Retry.MaxBackoff, &override.HTTP.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg.Merge(override), nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NGRAMSTREAM_ prefix.
func (c *Config) LoadFromEnv() error {
	str := map[string]*string{
		"NGRAMSTREAM_LANGUAGE":      &c.Language,
		"NGRAMSTREAM_VERSION":       &c.Version,
		"NGRAMSTREAM_SOURCE_URL":    &c.SourceURL,
		"NGRAMSTREAM_SOURCE_BUCKET": &c.SourceBucket,
		"NGRAMSTREAM_CACHE_DIR":     &c.CacheDir,
		"NGRAMSTREAM_OUTPUT_DIR":    &c.OutputDir,
		"NGRAMSTREAM_CHECKPOINT":    &c.Checkpoint,
		"NGRAMSTREAM_LOG_LEVEL":     &c.Log.Level,
		"NGRAMSTREAM_LOG_FORMAT":    &c.Log.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NGRAMSTREAM_NGRAM_SIZE":       &c.NgramSize,
		"NGRAMSTREAM_LIMIT":            &c.Limit,
		"NGRAMSTREAM_WORKERS":          &c.Workers,
		"NGRAMSTREAM_MAX_IN_FLIGHT":    &c.MaxInFlight,
		"NGRAMSTREAM_QUEUE_SIZE":       &c.QueueSize,
		"NGRAMSTREAM_CHECKPOINT_EVERY": &c.CheckpointEvery,
		"NGRAMSTREAM_FLUSH_THRESHOLD":  &c.FlushThreshold,
		"NGRAMSTREAM_RETRY_ATTEMPTS":   &c.HTTP.Retry.Attempts,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"NGRAMSTREAM_POLL_INTERVAL":     &c.PollInterval,
		"NGRAMSTREAM_HTTP_TIMEOUT":      &c.HTTP.Timeout,
		"NGRAMSTREAM_RETRY_BACKOFF":     &c.HTTP.Retry.Backoff,
		"NGRAMSTREAM_RETRY_MAX_BACKOFF": &c.HTTP.Retry.MaxBackoff,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("NGRAMSTREAM_SHARDS"); v != "" {
		c.Shards = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
	if v := os.Getenv("NGRAMSTREAM_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse NGRAMSTREAM_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("NGRAMSTREAM_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("NGRAMSTREAM_NO_PREFETCH"); v != "" {
		c.NoPrefetch = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := corpus.Indices(c.Language, c.NgramSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(c.Shards) > 0 {
		if _, err := corpus.Validate(c.Language, c.NgramSize, c.Shards); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Version != "", "version is required"},
		{c.SourceURL != "" || c.SourceBucket != "", "source_url or source_bucket is required"},
		{c.CacheDir != "", "cache_dir is required"},
		{c.OutputDir != "", "output_dir is required"},
		{c.Limit >= 0, "limit must not be negative"},
		{c.Workers > 0, "workers must be positive"},
		{c.MaxInFlight > 0, "max_in_flight must be positive"},
		{c.QueueSize > 0, "queue_size must be positive"},
		{c.ChunkSize > 0, "chunk_size must be positive"},
		{c.CheckpointEvery > 0, "checkpoint_every must be positive"},
		{c.FlushThreshold > 0, "flush_threshold must be positive"},
		{c.PollInterval > 0, "poll_interval must be positive"},
		{c.HTTP.Retry.Attempts >= 0, "http.retry.attempts must not be negative"},
		{len(c.Groups) > 0, "at least one match group is required"},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, ch.msg)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if f := c.Log.Format; f != "" && f != "console" && f != "json" {
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalid, f)
	}
	if _, err := match.New(c.MatchGroups()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Language != "" {
		c.Language = override.Language
	}
	if override.NgramSize != 0 {
		c.NgramSize = override.NgramSize
	}
	if override.Version != "" {
		c.Version = override.Version
	}
	if len(override.Shards) > 0 {
		c.Shards = override.Shards
	}
	if override.Limit != 0 {
		c.Limit = override.Limit
	}
	if override.SourceURL != "" {
		c.SourceURL = override.SourceURL
	}
	if override.SourceBucket != "" {
		c.SourceBucket = override.SourceBucket
	}
	if override.CacheDir != "" {
		c.CacheDir = override.CacheDir
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Checkpoint != "" {
		c.Checkpoint = override.Checkpoint
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.MaxInFlight != 0 {
		c.MaxInFlight = override.MaxInFlight
	}
	if override.QueueSize != 0 {
		c.QueueSize = override.QueueSize
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.CheckpointEvery != 0 {
		c.CheckpointEvery = override.CheckpointEvery
	}
	if override.FlushThreshold != 0 {
		c.FlushThreshold = override.FlushThreshold
	}
	if override.PollInterval != 0 {
		c.PollInterval = override.PollInterval
	}
	if override.NoPrefetch {
		c.NoPrefetch = override.NoPrefetch
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.HTTP.Timeout != 0 {
		c.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.Retry.Attempts != 0 {
		c.HTTP.Retry.Attempts = override.HTTP.Retry.Attempts
	}
	if override.HTTP.Retry.Backoff != 0 {
		c.HTTP.Retry.Backoff = override.HTTP.Retry.Backoff
	}
	if override.HTTP.Retry.MaxBackoff != 0 {
		c.HTTP.Retry.MaxBackoff = override.HTTP.Retry.MaxBackoff
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if len(override.Groups) > 0 {
		c.Groups = override.Groups
	}
	return c
}
