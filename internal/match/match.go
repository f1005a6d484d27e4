// Package match parses corpus lines and classifies them into match groups.
//
// A corpus line has four tab-separated fields:
//
//	ngram TAB year TAB match_count TAB volume_count
//
// The ngram is normalized by removing part-of-speech annotations (an
// underscore followed by non-space characters, e.g. "_NOUN"), trimming, and
// lowercasing. A normalized ngram matches a group if it starts or ends with
// any of the group's triggers. Groups are independent: one record can match
// several of them, and it is emitted once for each.
//
// A Matcher holds only read-only state and is safe for concurrent use.
package match

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cyaom16/google-ngram-streamer/internal/chunk"
)

// ErrInvalidGroup is returned by New for unusable group definitions.
var ErrInvalidGroup = errors.New("match: invalid group")

// annotation matches an underscore and the tag that follows it.
var annotation = regexp.MustCompile(`_\S*`)

// Group is a named set of trigger terms.
type Group struct {
	Name     string
	Triggers []string
}

// Record is one parsed corpus line.
type Record struct {
	Ngram       string
	Year        int64
	MatchCount  int64
	VolumeCount int64
}

// Match is a record tagged with the group it matched.
type Match struct {
	Group  string
	Record Record
}

// Malformed describes a discarded line.
type Malformed struct {
	Line   int
	Reason string
}

// Result is the outcome of matching one chunk.
type Result struct {
	Matches   []Match
	Malformed []Malformed

	// Processed counts lines that were parsed (including malformed and
	// empty-after-normalization lines). Skipped counts lines at or below the
	// resume point that were not looked at.
	Processed int
	Skipped   int
}

// Matcher tests records against a fixed set of groups.
type Matcher struct {
	groups []Group
}

// New validates groups and returns a Matcher. Group names must be unique and
// every group needs at least one non-empty trigger. Triggers are lowercased;
// groups are kept in name order.
func New(groups []Group) (*Matcher, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups configured", ErrInvalidGroup)
	}

	seen := make(map[string]bool, len(groups))
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty group name", ErrInvalidGroup)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidGroup, name)
		}
		seen[name] = true

		triggers := make([]string, 0, len(g.Triggers))
		for _, t := range g.Triggers {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				triggers = append(triggers, t)
			}
		}
		if len(triggers) == 0 {
			return nil, fmt.Errorf("%w: group %q has no triggers", ErrInvalidGroup, name)
		}
		out = append(out, Group{Name: name, Triggers: triggers})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return &Matcher{groups: out}, nil
}

// Groups returns the normalized group definitions.
func (m *Matcher) Groups() []Group {
	out := make([]Group, len(m.groups))
	for i, g := range m.groups {
		out[i] = Group{Name: g.Name, Triggers: append([]string(nil), g.Triggers...)}
	}
	return out
}

// Normalize strips annotations from an ngram, trims it, and lowercases it.
func Normalize(ngram string) string {
	return strings.ToLower(strings.TrimSpace(annotation.ReplaceAllString(ngram, "")))
}

// Parse splits one line (without its newline) into a record. The returned
// string is a reason when the line is malformed.
func Parse(line string) (Record, string) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Record{}, fmt.Sprintf("expected 4 fields, got %d", len(fields))
	}

	var rec Record
	var err error
	if rec.Year, err = strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64); err != nil {
		return Record{}, fmt.Sprintf("bad year %q", fields[1])
	}
	if rec.MatchCount, err = strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64); err != nil {
		return Record{}, fmt.Sprintf("bad match_count %q", fields[2])
	}
	if rec.VolumeCount, err = strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64); err != nil {
		return Record{}, fmt.Sprintf("bad volume_count %q", fields[3])
	}
	rec.Ngram = Normalize(fields[0])
	return rec, ""
}

// classify appends the names of the groups term falls into to dst.
func (m *Matcher) classify(term string, dst []string) []string {
	for _, g := range m.groups {
		for _, t := range g.Triggers {
			if strings.HasPrefix(term, t) || strings.HasSuffix(term, t) {
				dst = append(dst, g.Name)
				break
			}
		}
	}
	return dst
}

// Classify returns the names of every group term matches.
func (m *Matcher) Classify(term string) []string {
	return m.classify(strings.ToLower(term), nil)
}

// Match parses every line of c. Lines numbered at or below skipThrough are
// counted as skipped and not parsed.
func (m *Matcher) Match(c *chunk.Chunk, skipThrough int) Result {
	var res Result
	var names []string

	data := c.Data
	lineNo := c.FirstLine - 1
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		lineNo++

		if lineNo <= skipThrough {
			res.Skipped++
			continue
		}
		res.Processed++

		line = bytes.TrimSuffix(line, []byte{'\r'})
		rec, reason := Parse(string(line))
		if reason != "" {
			res.Malformed = append(res.Malformed, Malformed{Line: lineNo, Reason: reason})
			continue
		}
		if rec.Ngram == "" {
			continue
		}

		names = m.classify(rec.Ngram, names[:0])
		for _, name := range names {
			res.Matches = append(res.Matches, Match{Group: name, Record: rec})
		}
	}
	return res
}
