package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyaom16/google-ngram-streamer/internal/checkpoint"
	"github.com/cyaom16/google-ngram-streamer/internal/config"
	"github.com/cyaom16/google-ngram-streamer/internal/fetch"
	ngramhttp "github.com/cyaom16/google-ngram-streamer/internal/http"
	"github.com/cyaom16/google-ngram-streamer/internal/logging"
	"github.com/cyaom16/google-ngram-streamer/internal/match"
	"github.com/cyaom16/google-ngram-streamer/internal/pipeline"
	"github.com/cyaom16/google-ngram-streamer/internal/progress"
	"github.com/cyaom16/google-ngram-streamer/internal/sink"
	"github.com/cyaom16/google-ngram-streamer/pkg/corpus"
)

func newScanCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the remaining shards and append matches to the group tables",
		Long: `Scan resumes from the checkpoint log: shards logged before the most recent
entry are skipped, and the most recent shard continues after its logged line.
SIGINT or SIGTERM stops dispatch, finishes in-flight chunks, flushes output
and saves the position before exiting with status 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runScan(ctx, cfg, cmd)
		},
	}

	f := cmd.Flags()
	o := &g.override
	f.StringVar(&o.SourceURL, "source", "", "Base URL shards are downloaded from")
	f.StringVar(&o.SourceBucket, "source-bucket", "", "Bucket URL to read shards from instead (gs://, s3://, file://)")
	f.StringVar(&o.CacheDir, "cache-dir", "", "Local shard cache directory")
	f.StringVar(&o.OutputDir, "output", "", "Output base directory")
	f.IntVar(&o.Workers, "workers", 0, "Matcher goroutines per shard")
	f.IntVar(&o.MaxInFlight, "max-in-flight", 0, "Ceiling on chunks dispatched but not yet matched")
	f.IntVar(&o.QueueSize, "queue-size", 0, "Writer queue capacity")
	f.StringVar(&g.chunkSize, "chunk-size", "", "Decompressed chunk size (e.g. 1MiB)")
	f.IntVar(&o.CheckpointEvery, "checkpoint-every", 0, "Lines between periodic checkpoints")
	f.IntVar(&o.FlushThreshold, "flush-threshold", 0, "Buffered rows that force an early flush")
	f.DurationVar(&o.PollInterval, "poll-interval", 0, "Bounded wait for an in-flight slot")
	f.BoolVar(&o.NoPrefetch, "no-prefetch", false, "Do not download the next shard in the background")
	f.BoolVar(&o.Progress, "progress", false, "Print progress to stderr")
	f.IntVar(&o.HTTP.Retry.Attempts, "retries", 0, "Retries on server errors per shard")
	f.DurationVar(&o.HTTP.Timeout, "http-timeout", 0, "Time to wait for response headers")

	return cmd
}

func runScan(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	defer logger.Sync()

	ids, err := shardIDs(cfg)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(cfg.CheckpointPath())
	if err != nil {
		return withCode(ExitOutputError, err)
	}
	defer store.Close()

	cp, err := store.Load()
	if err != nil {
		return withCode(ExitGeneralError, err)
	}
	todo, resume := checkpoint.Plan(ids, cp)
	if cp != nil {
		logger.Info("resuming from checkpoint",
			zap.String("checkpoint", store.Path()),
			zap.String("shard", cp.Shard),
			zap.Int("line", cp.Line),
			zap.Int("completed", len(cp.Completed)),
		)
	}
	logger.Info("shards to scan", zap.Int("count", len(todo)), zap.Int("total", len(ids)))
	if len(todo) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
		return nil
	}

	cache, err := fetch.OpenCache(cfg.CacheDir)
	if err != nil {
		return withCode(ExitOutputError, err)
	}
	defer cache.Close()

	var src fetch.Source
	if cfg.SourceBucket != "" {
		bs, err := fetch.OpenBucketSource(ctx, cfg.SourceBucket)
		if err != nil {
			return withCode(ExitInvalidArgs, err)
		}
		defer bs.Close()
		src = bs
	} else {
		httpOpts := ngramhttp.DefaultOptions()
		httpOpts.Timeout = cfg.HTTP.Timeout
		httpOpts.RetryAttempts = cfg.HTTP.Retry.Attempts
		httpOpts.RetryBackoff = cfg.HTTP.Retry.Backoff
		httpOpts.RetryMaxBackoff = cfg.HTTP.Retry.MaxBackoff
		src = fetch.NewHTTPSource(cfg.SourceURL, httpOpts)
	}

	fetcher := fetch.New(cache, src, fetch.WithLogger(logger))
	defer fetcher.Wait()

	matcher, err := match.New(cfg.MatchGroups())
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	out, err := sink.New(cfg.OutputPath(), sink.Options{
		FlushThreshold: cfg.FlushThreshold,
		Logger:         logger,
	})
	if err != nil {
		return withCode(ExitOutputError, err)
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			Label:       fmt.Sprintf("%s %dgram", cfg.Language, cfg.NgramSize),
			TotalShards: len(todo),
			Output:      cmd.ErrOrStderr(),
		})
		reporter.Start()
	}

	shards := make([]pipeline.Shard, len(todo))
	for i, id := range todo {
		shards[i] = pipeline.Shard{
			ID:   id,
			Name: corpus.FileName(cfg.Language, cfg.NgramSize, cfg.Version, id),
		}
	}

	coord := pipeline.New(fetcher, matcher, out, store, pipeline.Options{
		Workers:         cfg.Workers,
		MaxInFlight:     int64(cfg.MaxInFlight),
		QueueSize:       cfg.QueueSize,
		ChunkSize:       int(cfg.ChunkSize),
		CheckpointEvery: cfg.CheckpointEvery,
		PollInterval:    cfg.PollInterval,
		Prefetch:        !cfg.NoPrefetch,
		Logger:          logger,
		Progress:        reporter,
	})

	sum, runErr := coord.Run(ctx, shards, resume)
	if reporter != nil {
		reporter.Stop()
	}
	closeErr := out.Close()

	logger.Info("scan finished",
		zap.Int("completed", len(sum.Completed)),
		zap.Strings("unavailable", sum.Unavailable),
		zap.Strings("incomplete", sum.Incomplete),
		zap.Int64("lines", sum.Lines),
		zap.Int64("skipped", sum.Skipped),
		zap.Int64("malformed", sum.Malformed),
		zap.Int64("matches", sum.Matches),
		zap.Bool("interrupted", sum.Interrupted),
	)

	if runErr != nil {
		return withCode(ExitOutputError, runErr)
	}
	if closeErr != nil {
		return withCode(ExitOutputError, fmt.Errorf("close output: %w", closeErr))
	}

	w := cmd.OutOrStdout()
	if sum.Interrupted {
		fmt.Fprintf(w, "Interrupted. Progress saved to %s; run again to resume.\n", store.Path())
		return nil
	}
	fmt.Fprintf(w, "Scanned %d shards: %d lines, %d matches.\n", len(sum.Completed), sum.Lines, sum.Matches)
	if len(sum.Unavailable) > 0 {
		fmt.Fprintf(w, "Unavailable (retried next run): %s\n", strings.Join(sum.Unavailable, " "))
	}
	if len(sum.Incomplete) > 0 {
		fmt.Fprintf(w, "Incomplete (damaged stream, cache evicted): %s\n", strings.Join(sum.Incomplete, " "))
	}
	return nil
}

func parseSize(s string) (int64, error) {
	n, err := progress.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse --chunk-size: %w", err)
	}
	return n, nil
}
