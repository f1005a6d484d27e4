// Package chunk decompresses a cached shard into line-aligned text chunks.
//
// A [Decoder] reads a byte budget of decompressed text, then keeps reading
// until the next newline, and hands the whole span out as one [Chunk]. No
// record line is ever split across two chunks, so chunks can be parsed
// independently and in parallel.
//
//	dec, err := chunk.NewDecoder(r, 1<<20)
//	for {
//	    c, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    var ie *chunk.IntegrityError
//	    if errors.As(err, &ie) {
//	        // shard is damaged; chunks already returned are valid
//	    }
//	    ...
//	}
//
// # Line numbers
//
// Chunks carry the 1-based number of their first line. Numbering restarts at
// 1 for every shard because decoding always starts at the beginning of the
// compressed stream; resume is done by the caller skipping lines, never by
// seeking.
package chunk
