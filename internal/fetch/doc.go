// Package fetch retrieves compressed shards into a local blob cache.
//
// A [Fetcher] wraps a cache bucket (usually fileblob on local disk) and a
// [Source] the shards come from. A shard whose cache key exists is served
// from the cache without touching the source. Otherwise the source is read
// once, streaming, into a cache writer; if the copy fails the writer's
// context is cancelled before Close, so the partial object is never
// published.
//
// # Sources
//
//   - [HTTPSource] issues one GET per shard against a base URL, such as the
//     public Google Books endpoint.
//   - [BucketSource] reads from any gocloud bucket URL (gs://, s3://,
//     file://, mem://), for mirrors of the corpus.
//
// Source failures are reported as [ErrUnavailable] so the caller can skip
// the shard and move on. Context cancellation is returned unchanged.
//
// # Prefetch
//
// [Fetcher.Prefetch] starts a fetch in the background. A later Fetch of the
// same name joins the in-flight download instead of starting a second one.
package fetch
