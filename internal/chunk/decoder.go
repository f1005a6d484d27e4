package chunk

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DefaultBudget is the decompressed byte budget of one chunk.
const DefaultBudget = 1 << 20

// Chunk is a block of decoded text ending on a line boundary.
type Chunk struct {
	// Seq is the zero-based position of the chunk within its shard.
	Seq int

	// FirstLine is the 1-based line number of the first line in Data.
	FirstLine int

	// Lines is the number of lines in Data.
	Lines int

	// Data holds complete lines. Every line but possibly the shard's very
	// last one ends in '\n'.
	Data []byte
}

// LastLine returns the line number of the final line in the chunk.
func (c *Chunk) LastLine() int {
	return c.FirstLine + c.Lines - 1
}

// IntegrityError reports a compressed stream that could not be fully decoded.
type IntegrityError struct {
	// Line is the last line that was decoded intact.
	Line int
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chunk: corrupt stream after line %d: %v", e.Line, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Decoder yields line-aligned chunks from a gzip stream.
type Decoder struct {
	gz     *gzip.Reader
	br     *bufio.Reader
	budget int

	seq  int
	line int // last line handed out
	err  error
}

// NewDecoder starts decoding r. A stream that doesn't carry a valid gzip
// header is reported as an IntegrityError.
func NewDecoder(r io.Reader, budget int) (*Decoder, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &IntegrityError{Err: err}
	}

	return &Decoder{
		gz:     gz,
		br:     bufio.NewReaderSize(gz, 64*1024),
		budget: budget,
	}, nil
}

// Next returns the next chunk. It returns io.EOF after the last chunk, or an
// *IntegrityError once the stream turns out to be damaged. Both are sticky.
func (d *Decoder) Next() (*Chunk, error) {
	if d.err != nil {
		return nil, d.err
	}

	buf := make([]byte, d.budget)
	n, err := d.fill(buf)
	buf = buf[:n]

	if err == nil && n > 0 && buf[n-1] != '\n' {
		var rest []byte
		rest, err = d.br.ReadBytes('\n')
		buf = append(buf, rest...)
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		d.err = io.EOF
	default:
		// Only the whole lines before the damage are trustworthy.
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			buf = buf[:i+1]
		} else {
			buf = buf[:0]
		}
		d.err = &IntegrityError{Line: d.line + countLines(buf), Err: err}
	}

	if len(buf) == 0 {
		return nil, d.err
	}

	c := &Chunk{
		Seq:       d.seq,
		FirstLine: d.line + 1,
		Lines:     countLines(buf),
		Data:      buf,
	}
	d.seq++
	d.line += c.Lines
	return c, nil
}

// Line returns the number of lines handed out so far.
func (d *Decoder) Line() int {
	return d.line
}

// Close releases the decompressor. It does not close the underlying reader.
func (d *Decoder) Close() error {
	return d.gz.Close()
}

// fill reads until buf is full or the stream returns an error.
func (d *Decoder) fill(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := d.br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// countLines counts newline-terminated lines plus a final unterminated one.
func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte{'\n'})
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}
