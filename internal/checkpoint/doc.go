// Package checkpoint persists scan progress as an append-only log.
//
// # Format
//
//	# ngramstream checkpoint v1
//	aa 5001
//	aa 10001
//	aa 12873
//	ab 5001
//
// Every Save appends one "<shard> <line>" entry and fsyncs. Nothing is ever
// rewritten, so a crash can at worst leave a torn final line, which Load
// ignores.
//
// # Resume
//
// The final entry names the current shard and the last line known to be
// durably processed in it. Every other shard that appears in the log has been
// followed by a different shard, so it is complete. The current shard is not:
// its logged line may be mid-shard, so it stays on the to-do list and its
// lines up to the logged line are skipped. See [Plan].
package checkpoint
