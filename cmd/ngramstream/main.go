// Command ngramstream scans the Google Books n-gram corpus for configured
// term groups, resuming from a checkpoint log after any interruption.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyaom16/google-ngram-streamer/internal/config"
	"github.com/cyaom16/google-ngram-streamer/pkg/corpus"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitOutputError  = 3
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, config.ErrInvalid), errors.Is(err, corpus.ErrInvalidConfiguration):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	override   config.Config
	chunkSize  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "ngramstream",
		Short: "Stream the Google Books n-gram corpus into per-group match tables",
		Long: `ngramstream downloads the shards of one Google Books n-gram corpus, scans
every record for the configured term groups, and appends matches to one
tab-separated table per group. Progress is logged to an append-only
checkpoint file so an interrupted scan resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&g.override.Language, "language", "", "Corpus language (e.g. eng, eng-us, fre)")
	pf.IntVarP(&g.override.NgramSize, "ngram-size", "n", 0, "N-gram size (1-5)")
	pf.StringVar(&g.override.Version, "corpus-version", "", "Corpus version string")
	pf.StringSliceVar(&g.override.Shards, "shards", nil, "Explicit shard identifiers (default: all)")
	pf.IntVar(&g.override.Limit, "limit", 0, "Process at most this many shards of the list")
	pf.StringVar(&g.override.Checkpoint, "checkpoint", "", "Checkpoint log path (default: log_<lang>_<n>gram.txt)")
	pf.StringVar(&g.override.Log.Level, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.override.Log.Format, "log-format", "", "Log format (console, json)")

	root.AddCommand(
		newScanCmd(g),
		newShardsCmd(g),
		newStatusCmd(g),
	)
	return root
}

// load resolves the configuration: defaults, then file, then environment,
// then flags.
func (g *globalFlags) load() (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(g.configPath); err != nil {
			return config.Config{}, withCode(ExitInvalidArgs, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, withCode(ExitInvalidArgs, err)
	}

	override := g.override
	if g.chunkSize != "" {
		size, err := parseSize(g.chunkSize)
		if err != nil {
			return config.Config{}, withCode(ExitInvalidArgs, err)
		}
		override.ChunkSize = size
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, withCode(ExitInvalidArgs, err)
	}
	return cfg, nil
}

// shardIDs returns the configured shard list in enumeration order, cut to
// the limit.
func shardIDs(cfg config.Config) ([]string, error) {
	var ids []string
	var err error
	if len(cfg.Shards) > 0 {
		ids, err = corpus.Validate(cfg.Language, cfg.NgramSize, cfg.Shards)
	} else {
		ids, err = corpus.Indices(cfg.Language, cfg.NgramSize)
	}
	if err != nil {
		return nil, withCode(ExitInvalidArgs, err)
	}
	if cfg.Limit > 0 && cfg.Limit < len(ids) {
		ids = ids[:cfg.Limit]
	}
	return ids, nil
}
