package chunk

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// drain reads every chunk and returns them with the terminating error.
func drain(t *testing.T, dec *Decoder) ([]*Chunk, error) {
	t.Helper()
	var chunks []*Chunk
	for {
		c, err := dec.Next()
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
}

func TestDecoderSingleChunk(t *testing.T) {
	text := "a\t1\t2\t3\nb\t1\t2\t3\n"
	dec, err := NewDecoder(bytes.NewReader(compress(t, text)), 1024)
	require.NoError(t, err)
	defer dec.Close()

	chunks, err := drain(t, dec)
	assert.Equal(t, io.EOF, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, string(chunks[0].Data))
	assert.Equal(t, 1, chunks[0].FirstLine)
	assert.Equal(t, 2, chunks[0].Lines)
	assert.Equal(t, 2, chunks[0].LastLine())
}

func TestDecoderExtendsToNewline(t *testing.T) {
	text := "aaaa\nbbbbbbbb\ncc\n"
	dec, err := NewDecoder(bytes.NewReader(compress(t, text)), 6)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	assert.Equal(t, io.EOF, err)
	require.Len(t, chunks, 2)

	// 6 bytes lands inside "bbbbbbbb"; the chunk runs on to its newline.
	assert.Equal(t, "aaaa\nbbbbbbbb\n", string(chunks[0].Data))
	assert.Equal(t, "cc\n", string(chunks[1].Data))
	assert.Equal(t, 3, chunks[1].FirstLine)
	assert.Equal(t, 1, chunks[1].Seq)
}

func TestDecoderBudgetEndsOnNewline(t *testing.T) {
	text := "abc\ndef\n"
	dec, err := NewDecoder(bytes.NewReader(compress(t, text)), 4)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	assert.Equal(t, io.EOF, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "abc\n", string(chunks[0].Data))
	assert.Equal(t, "def\n", string(chunks[1].Data))
}

func TestDecoderUnterminatedFinalLine(t *testing.T) {
	text := "one\ntwo\nthree"
	dec, err := NewDecoder(bytes.NewReader(compress(t, text)), 5)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	assert.Equal(t, io.EOF, err)

	var got strings.Builder
	for _, c := range chunks {
		got.Write(c.Data)
	}
	assert.Equal(t, text, got.String())
	assert.Equal(t, 3, dec.Line())
}

func TestDecoderEmptyStream(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader(compress(t, "")), 16)
	require.NoError(t, err)

	c, err := dec.Next()
	assert.Nil(t, c)
	assert.Equal(t, io.EOF, err)

	// Sticky.
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

// TestDecoderLineBoundaryProperty checks that for random texts and budgets
// the chunks reassemble the input and none of them ends mid-line.
func TestDecoderLineBoundaryProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for iter := 0; iter < 200; iter++ {
		budget := 1 + rng.IntN(64)

		// Lines sized around the budget so terminators cluster near chunk edges.
		var b strings.Builder
		lines := 1 + rng.IntN(40)
		for i := 0; i < lines; i++ {
			width := budget - 2 + rng.IntN(5)
			if width < 0 {
				width = 0
			}
			for j := 0; j < width; j++ {
				b.WriteByte(byte('a' + rng.IntN(26)))
			}
			b.WriteByte('\n')
		}
		text := b.String()

		dec, err := NewDecoder(bytes.NewReader(compress(t, text)), budget)
		require.NoError(t, err)
		chunks, err := drain(t, dec)
		require.Equal(t, io.EOF, err)

		var got bytes.Buffer
		next := 1
		for i, c := range chunks {
			require.True(t, bytes.HasSuffix(c.Data, []byte{'\n'}), "iter %d chunk %d ends mid-line", iter, i)
			require.Equal(t, next, c.FirstLine)
			require.Equal(t, bytes.Count(c.Data, []byte{'\n'}), c.Lines)
			next += c.Lines
			got.Write(c.Data)
		}
		require.Equal(t, text, got.String(), "iter %d budget %d", iter, budget)
		require.Equal(t, lines, dec.Line())
	}
}

func TestDecoderMultistream(t *testing.T) {
	data := append(compress(t, "first\n"), compress(t, "second\n")...)
	dec, err := NewDecoder(bytes.NewReader(data), 1024)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	assert.Equal(t, io.EOF, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first\nsecond\n", string(chunks[0].Data))
}

func TestDecoderBadHeader(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("this is not gzip"), 16)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 0, ie.Line)
}

func TestDecoderTrailingGarbage(t *testing.T) {
	data := append(compress(t, "x\t1\t1\t1\ny\t1\t1\t1\n"), []byte("garbage!!!!")...)
	dec, err := NewDecoder(bytes.NewReader(data), 1024)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)

	var lines int
	for _, c := range chunks {
		lines += c.Lines
	}
	assert.Equal(t, 2, lines)
	assert.Equal(t, 2, ie.Line)
}

func TestDecoderTruncated(t *testing.T) {
	var text strings.Builder
	for i := 0; i < 2000; i++ {
		text.WriteString("some ngram text\t1999\t12\t3\n")
	}
	data := compress(t, text.String())
	data = data[:len(data)/2]

	dec, err := NewDecoder(bytes.NewReader(data), 256)
	require.NoError(t, err)

	chunks, err := drain(t, dec)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)

	// Whatever came out before the damage consists of whole lines.
	for _, c := range chunks {
		assert.True(t, bytes.HasSuffix(c.Data, []byte{'\n'}))
	}

	// Sticky.
	_, again := dec.Next()
	assert.Equal(t, err, again)
}
