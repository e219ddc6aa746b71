package corpus

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jonathan/picoscan/internal/types"
)

// Search returns every occurrence of the pattern across all entries, ordered by
// path and then by offset. Literal signatures (and their aliases) match as
// case-sensitive substrings, overlapping occurrences included. Regex patterns
// use RE2 syntax; an invalid expression yields a *PatternError.
//
// Search scans the whole corpus per call. Matching many literal patterns at
// once should go through the matcher package instead.
func (c *Corpus) Search(pattern types.APIPattern) ([]types.Location, error) {
	if pattern.Regex {
		re, err := regexp.Compile(pattern.Signature)
		if err != nil {
			return nil, &PatternError{Pattern: pattern.Name(), Message: "invalid regular expression", Cause: err}
		}
		return c.SearchRegexp(re), nil
	}

	literals := append([]string{pattern.Signature}, pattern.Aliases...)
	var out []types.Location
	for _, e := range c.entries {
		var offsets []int
		for _, lit := range literals {
			offsets = append(offsets, findAll(e.Text, lit)...)
		}
		out = append(out, e.Locations(offsets)...)
	}
	return out, nil
}

// SearchRegexp returns the non-empty matches of re across all entries.
func (c *Corpus) SearchRegexp(re *regexp.Regexp) []types.Location {
	var out []types.Location
	for _, e := range c.entries {
		var offsets []int
		for _, m := range re.FindAllStringIndex(e.Text, -1) {
			if m[1] > m[0] {
				offsets = append(offsets, m[0])
			}
		}
		out = append(out, e.Locations(offsets)...)
	}
	return out
}

// Locations converts byte offsets into sorted, de-duplicated locations in e.
// The offsets slice is sorted in place.
func (e *Entry) Locations(offsets []int) []types.Location {
	if len(offsets) == 0 {
		return nil
	}
	sort.Ints(offsets)
	out := make([]types.Location, 0, len(offsets))
	prev := -1
	for _, off := range offsets {
		if off == prev {
			continue
		}
		prev = off
		out = append(out, types.Location{Path: e.Path, Line: e.LineAt(off), Offset: off})
	}
	return out
}

func findAll(text, lit string) []int {
	if lit == "" {
		return nil
	}
	var out []int
	for start := 0; start <= len(text)-len(lit); {
		i := strings.Index(text[start:], lit)
		if i < 0 {
			break
		}
		out = append(out, start+i)
		start += i + 1
	}
	return out
}
