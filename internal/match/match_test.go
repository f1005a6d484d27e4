package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyaom16/google-ngram-streamer/internal/chunk"
)

func newMatcher(t *testing.T, groups ...Group) *Matcher {
	t.Helper()
	m, err := New(groups)
	require.NoError(t, err)
	return m
}

func chunkOf(first int, text string) *chunk.Chunk {
	lines := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines++
		}
	}
	if len(text) > 0 && text[len(text)-1] != '\n' {
		lines++
	}
	return &chunk.Chunk{FirstLine: first, Lines: lines, Data: []byte(text)}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Technology_NOUN", "technology"},
		{"___", ""},
		{"Labour_NOUN party_NOUN", "labour party"},
		{"_NOUN_ party", "party"},
		{"  Steam engine_X  ", "steam engine"},
		{"GOP", "gop"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestParse(t *testing.T) {
	rec, reason := Parse("Science_NOUN\t1999\t42\t7")
	require.Empty(t, reason)
	assert.Equal(t, Record{Ngram: "science", Year: 1999, MatchCount: 42, VolumeCount: 7}, rec)

	tests := []struct {
		name string
		line string
	}{
		{"three fields", "science\t1999\t42"},
		{"five fields", "science\t1999\t42\t7\t1"},
		{"empty line", ""},
		{"bad year", "science\tnineteen\t42\t7"},
		{"bad match count", "science\t1999\t4x2\t7"},
		{"bad volume count", "science\t1999\t42\t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reason := Parse(tt.line)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		groups []Group
	}{
		{"none", nil},
		{"empty name", []Group{{Name: " ", Triggers: []string{"x"}}}},
		{"no triggers", []Group{{Name: "war"}}},
		{"blank triggers", []Group{{Name: "war", Triggers: []string{"", "  "}}}},
		{"duplicate", []Group{{Name: "war", Triggers: []string{"war"}}, {Name: "war", Triggers: []string{"wars"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.groups)
			assert.True(t, errors.Is(err, ErrInvalidGroup))
		})
	}
}

func TestClassifyDirections(t *testing.T) {
	m := newMatcher(t, Group{Name: "science", Triggers: []string{"Science"}})

	assert.Equal(t, []string{"science"}, m.Classify("science fiction"), "starts with")
	assert.Equal(t, []string{"science"}, m.Classify("political science"), "ends with")
	assert.Equal(t, []string{"science"}, m.Classify("SCIENCE"), "case-insensitive")
	assert.Empty(t, m.Classify("the science of"), "neither")
}

func TestClassifyMultipleGroups(t *testing.T) {
	m := newMatcher(t,
		Group{Name: "war", Triggers: []string{"war"}},
		Group{Name: "technology", Triggers: []string{"technology"}},
		Group{Name: "economics", Triggers: []string{"economics"}},
	)

	assert.Equal(t, []string{"technology", "war"}, m.Classify("war technology"))
}

func TestClassifyOncePerGroup(t *testing.T) {
	m := newMatcher(t, Group{Name: "communism", Triggers: []string{"communist", "communists"}})

	// Both triggers are prefixes; the group is still reported once.
	assert.Equal(t, []string{"communism"}, m.Classify("communists in"))
}

func TestGroupsNormalized(t *testing.T) {
	m := newMatcher(t,
		Group{Name: "b", Triggers: []string{" GOP "}},
		Group{Name: "a", Triggers: []string{"x"}},
	)
	groups := m.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Name)
	assert.Equal(t, []string{"gop"}, groups[1].Triggers)

	groups[1].Triggers[0] = "mutated"
	assert.Equal(t, "gop", m.Groups()[1].Triggers[0])
}

func TestMatchChunk(t *testing.T) {
	m := newMatcher(t,
		Group{Name: "war", Triggers: []string{"war"}},
		Group{Name: "technology", Triggers: []string{"technology"}},
	)

	c := chunkOf(1, "Technology_NOUN\t1990\t5\t2\n"+
		"broken\t1990\t5\n"+
		"___\t1990\t1\t1\n"+
		"war technology\t2000\t3\t1\n"+
		"peace\t2000\t9\t9\n"+
		"cold war\t1960\tx\t1\n"+
		"civil war_NOUN\t1865\t100\t50")

	res := m.Match(c, 0)
	assert.Equal(t, 7, res.Processed)
	assert.Equal(t, 0, res.Skipped)

	require.Len(t, res.Malformed, 2)
	assert.Equal(t, 2, res.Malformed[0].Line)
	assert.Equal(t, 6, res.Malformed[1].Line)

	assert.Equal(t, []Match{
		{Group: "technology", Record: Record{Ngram: "technology", Year: 1990, MatchCount: 5, VolumeCount: 2}},
		{Group: "technology", Record: Record{Ngram: "war technology", Year: 2000, MatchCount: 3, VolumeCount: 1}},
		{Group: "war", Record: Record{Ngram: "war technology", Year: 2000, MatchCount: 3, VolumeCount: 1}},
		{Group: "war", Record: Record{Ngram: "civil war", Year: 1865, MatchCount: 100, VolumeCount: 50}},
	}, res.Matches)
}

func TestMatchSkipsThroughResumePoint(t *testing.T) {
	m := newMatcher(t, Group{Name: "war", Triggers: []string{"war"}})

	c := chunkOf(10, "war\t1\t1\t1\nwar\t2\t1\t1\nwar\t3\t1\t1\n")
	res := m.Match(c, 11)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(3), res.Matches[0].Record.Year)
}

func TestMatchMalformedDoesNotShiftLines(t *testing.T) {
	m := newMatcher(t, Group{Name: "war", Triggers: []string{"war"}})

	c := chunkOf(1, "a\tb\tc\nwar\t1950\t1\t1\nwar\t1951\t1\t1\n")
	res := m.Match(c, 0)

	require.Len(t, res.Malformed, 1)
	assert.Equal(t, 1, res.Malformed[0].Line)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, int64(1950), res.Matches[0].Record.Year)
	assert.Equal(t, int64(1951), res.Matches[1].Record.Year)
}

func TestMatchCRLF(t *testing.T) {
	m := newMatcher(t, Group{Name: "war", Triggers: []string{"war"}})
	res := m.Match(chunkOf(1, "war\t1950\t1\t1\r\n"), 0)
	require.Len(t, res.Matches, 1)
	assert.Empty(t, res.Malformed)
}
