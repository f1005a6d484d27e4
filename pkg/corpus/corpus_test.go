package corpus

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndicesUnigram(t *testing.T) {
	ids, err := Indices("eng", 1)
	require.NoError(t, err)

	assert.Len(t, ids, 10+26+3)
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Contains(t, ids, "pos")
	assert.Contains(t, ids, "other")
	assert.Contains(t, ids, "punctuation")
	assert.NotContains(t, ids, "_NOUN_")
	assert.NotContains(t, ids, "aa")
}

func TestIndicesMultiWord(t *testing.T) {
	ids, err := Indices("eng-us", 2)
	require.NoError(t, err)

	assert.Len(t, ids, 10+26*27+2+10)
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Equal(t, "0", ids[0])
	assert.Contains(t, ids, "a_")
	assert.Contains(t, ids, "qk")
	assert.Contains(t, ids, "_VERB_")
	assert.NotContains(t, ids, "pos")
}

func TestIndicesExclusions(t *testing.T) {
	ids, err := Indices("eng-gb", 5)
	require.NoError(t, err)
	assert.NotContains(t, ids, "qk")
	assert.Len(t, ids, 10+26*27+2+10-1)

	for _, lang := range Languages() {
		ids, err := Indices(lang, 5)
		require.NoError(t, err)
		assert.NotContains(t, ids, "qk", lang)
	}

	// Smaller sizes keep it.
	ids, err = Indices("fre", 4)
	require.NoError(t, err)
	assert.Contains(t, ids, "qk")
}

func TestIndicesDeterministic(t *testing.T) {
	first, err := Indices("ger", 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Indices("ger", 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIndicesInvalid(t *testing.T) {
	tests := []struct {
		name string
		lang string
		n    int
	}{
		{"unknown language", "klingon", 2},
		{"size zero", "eng", 0},
		{"size too large", "eng", 6},
		{"empty language", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Indices(tt.lang, tt.n)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration))
		})
	}
}

func TestExcludedReturnsCopy(t *testing.T) {
	ex := Excluded("eng", 5)
	require.Equal(t, []string{"qk"}, ex)
	ex[0] = "zz"
	assert.Equal(t, []string{"qk"}, Excluded("eng", 5))
	assert.Empty(t, Excluded("eng", 2))
	assert.Equal(t, []string{"qk"}, Excluded("spa", 5))
}

func TestValidate(t *testing.T) {
	ids, err := Validate("eng", 2, []string{"ab", "aa", "ab", "9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "aa", "ab"}, ids)

	_, err = Validate("eng", 5, []string{"qk"})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	_, err = Validate("eng", 1, []string{"aa"})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "googlebooks-eng-gb-all-5gram-20120701-aa.gz", FileName("eng-gb", 5, DefaultVersion, "aa"))
	assert.Equal(t, "googlebooks-eng-all-1gram-20120701-_NOUN_.gz", FileName("eng", 1, "20120701", "_NOUN_"))
}

func TestURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{DefaultSource, "http://storage.googleapis.com/books/ngrams/books/f.gz"},
		{"http://localhost:8001", "http://localhost:8001/f.gz"},
		{"http://localhost:8001/mirror", "http://localhost:8001/mirror/f.gz"},
	}

	for _, tt := range tests {
		got, err := URL(tt.base, "f.gz")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
