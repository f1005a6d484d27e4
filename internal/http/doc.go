// Package http provides the streaming transport used to retrieve shards.
//
// This package handles:
//   - Connection pooling across sequential shard downloads
//   - Streaming GET with a response-header deadline but no body deadline
//   - Status classification (any 2xx is success)
//   - Optional retry with exponential backoff on 5xx (off by default)
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url)
//	if err != nil {
//	    // errors.Is(err, http.ErrNotFound), errors.As(err, &statusErr), ...
//	}
//	defer resp.Body.Close()
package http
