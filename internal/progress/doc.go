// Package progress prints human-readable scan progress.
//
// The reporter keeps atomic counters that pipeline goroutines bump as they
// go, and a ticker loop that periodically renders them.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Label:       "eng 5gram",
//	    TotalShards: len(todo),
//	    Output:      os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.ShardStarted("ab")
//	reporter.LinesProcessed(n)
//	reporter.ShardCompleted()
//
// # Output Format
//
//	[ngramstream] Scanning: eng 5gram | Shards: 676
//	[ngramstream] Shard ab | 3 / 676 done | Lines: 12,873,021 | Matches: 40,112 | Rate: 1.2 M lines/s
//	[ngramstream] Shards: 676 done | 2 failed | Lines: 1,832,004,113 | Matches: 5,921,880 | Time: 2h 4m 3s
package progress
