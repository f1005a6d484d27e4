package corpus

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// ErrInvalidConfiguration is returned for language, size, or identifier
// combinations the corpus does not publish.
var ErrInvalidConfiguration = errors.New("corpus: invalid configuration")

// DefaultVersion is the corpus release used when none is configured.
const DefaultVersion = "20120701"

// DefaultSource is the public location of the corpus files.
const DefaultSource = "http://storage.googleapis.com/books/ngrams/books/"

// MinSize and MaxSize bound the supported ngram sizes.
const (
	MinSize = 1
	MaxSize = 5
)

// Languages published in the 20120701 release.
var languages = map[string]bool{
	"eng":         true,
	"eng-us":      true,
	"eng-gb":      true,
	"eng-fiction": true,
	"chi-sim":     true,
	"fre":         true,
	"ger":         true,
	"heb":         true,
	"ita":         true,
	"rus":         true,
	"spa":         true,
}

const (
	digits    = "0123456789"
	lowercase = "abcdefghijklmnopqrstuvwxyz"
)

// categories are shard tokens for anything that doesn't start with a letter
// or digit.
var categories = []string{"other", "punctuation"}

// posTags are the syntactic category shards of multi-word corpora.
var posTags = []string{
	"_ADJ_", "_ADP_", "_ADV_", "_CONJ_", "_DET_",
	"_NOUN_", "_NUM_", "_PRON_", "_PRT_", "_VERB_",
}

// Languages returns the supported language tags in sorted order.
func Languages() []string {
	out := make([]string, 0, len(languages))
	for lang := range languages {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Indices returns every shard identifier for lang and n, sorted.
func Indices(lang string, n int) ([]string, error) {
	if !languages[lang] {
		return nil, fmt.Errorf("%w: unknown language %q", ErrInvalidConfiguration, lang)
	}
	if n < MinSize || n > MaxSize {
		return nil, fmt.Errorf("%w: ngram size %d outside [%d, %d]", ErrInvalidConfiguration, n, MinSize, MaxSize)
	}

	var ids []string
	for _, d := range digits {
		ids = append(ids, string(d))
	}

	if n == 1 {
		for _, c := range lowercase {
			ids = append(ids, string(c))
		}
		ids = append(ids, categories...)
		ids = append(ids, "pos")
	} else {
		for _, a := range lowercase {
			for _, b := range "_" + lowercase {
				ids = append(ids, string(a)+string(b))
			}
		}
		ids = append(ids, categories...)
		ids = append(ids, posTags...)
	}

	excluded := make(map[string]bool)
	for _, id := range exclusions[key{lang, n}] {
		excluded[id] = true
	}

	out := ids[:0]
	for _, id := range ids {
		if !excluded[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Validate checks that every id in ids exists for lang and n, and returns
// them in enumeration order with duplicates removed.
func Validate(lang string, n int, ids []string) ([]string, error) {
	all, err := Indices(lang, n)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(all))
	for _, id := range all {
		known[id] = true
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return nil, fmt.Errorf("%w: shard %q does not exist for %s %dgram", ErrInvalidConfiguration, id, lang, n)
		}
		want[id] = true
	}

	out := make([]string, 0, len(want))
	for _, id := range all {
		if want[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// FileName returns the published file name of one shard.
func FileName(lang string, n int, version, id string) string {
	return fmt.Sprintf("googlebooks-%s-all-%dgram-%s-%s.gz", lang, n, version, id)
}

// URL joins a shard file name onto a source base URL.
func URL(base, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("corpus: parse source url: %w", err)
	}
	return u.JoinPath(name).String(), nil
}
