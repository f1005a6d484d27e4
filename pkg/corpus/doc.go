// Package corpus enumerates the shards of the Google Books Ngram corpus.
//
// The corpus is partitioned into independently downloadable gzip files, one per
// shard identifier. Which identifiers exist depends only on the language and
// the ngram size, so enumeration is a pure function:
//
//	ids, err := corpus.Indices("eng-gb", 5)
//	// ids: ["0", ..., "9", "_ADJ_", ..., "a_", "aa", ..., "zz"]
//
// # Ordering
//
// Identifiers are returned in bytewise sorted order. Resume logic depends on
// this order being stable across runs.
//
// # Exclusions
//
// Some identifiers that the generator produces are absent from the published
// corpus. They are listed in an explicit table keyed by language and ngram
// size (see exclusions.go) rather than discovered at runtime.
//
// # Naming
//
//	{source}/googlebooks-{lang}-all-{n}gram-{version}-{id}.gz
package corpus
