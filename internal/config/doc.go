// Package config defines configuration structures for the ngramstream CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (NGRAMSTREAM_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file, which overrides
// [Default].
//
// # Example
//
//	language: eng-us
//	ngram_size: 5
//	shards: [aa, ab]
//	workers: 8
//	chunk_size: 1MiB
//	checkpoint_every: 5000
//	http:
//	  timeout: 60s
//	groups:
//	  computer: [computer, computers]
//	  steam engine: [steam engine, steam engines]
package config
