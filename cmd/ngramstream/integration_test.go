//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyaom16/google-ngram-streamer/internal/testutils"
)

func TestCLIIntegrationScanFromMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-mirror")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	mirror, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open mirror: %v", err)
	}
	defer mirror.Close()

	testutils.UploadShards(t, ctx, mirror, []testutils.ShardFile{
		{Name: "googlebooks-eng-all-5gram-20120701-aa.gz", Data: testutils.GzipLines(t, testutils.ShardLines("aa", 12000))},
		{Name: "googlebooks-eng-all-5gram-20120701-ab.gz", Data: testutils.GzipLines(t, testutils.ShardLines("ab", 3000))},
	})

	dir := t.TempDir()
	cp := filepath.Join(dir, "log.txt")

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"scan",
		"--language", "eng",
		"-n", "5",
		"--shards", "aa,ab",
		"--source-bucket", minio.BucketURL,
		"--cache-dir", filepath.Join(dir, "cache"),
		"--output", filepath.Join(dir, "out"),
		"--checkpoint", cp,
		"--checkpoint-every", "1000",
		"--log-level", "warn",
	}, &stdout, &stderr)
	if code != ExitSuccess {
		t.Fatalf("scan failed with exit code %d: %s", code, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "eng_5gram", "ngram_match_computer.tsv"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	rows := strings.Count(string(data), "\n") - 1
	if rows != 15000 {
		t.Errorf("expected 15000 rows, got %d", rows)
	}

	log, err := os.ReadFile(cp)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if !strings.Contains(string(log), "aa 12000\n") || !strings.HasSuffix(string(log), "ab 3000\n") {
		t.Errorf("unexpected checkpoint log:\n%s", log)
	}
}
