package matcher

import (
	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// automaton reports every occurrence of a fixed set of literals, overlapping
// ones included, with the byte offset where the occurrence starts.
type automaton struct {
	trie *ahocorasick.Trie
	ids  []int // trie pattern index -> literal index
}

// newAutomaton builds the trie over literals, which must be distinct.
func newAutomaton(literals []string) *automaton {
	a := &automaton{}
	var patterns []string
	for i, lit := range literals {
		if lit == "" {
			continue
		}
		patterns = append(patterns, lit)
		a.ids = append(a.ids, i)
	}
	if len(patterns) > 0 {
		a.trie = ahocorasick.NewTrieBuilder().AddStrings(patterns).Build()
	}
	return a
}

// scan calls fn once per occurrence with the literal index and start offset.
func (a *automaton) scan(text string, fn func(literal, start int)) {
	if a.trie == nil || text == "" {
		return
	}
	a.trie.Walk([]byte(text), func(end, n, pattern int64) bool {
		fn(a.ids[pattern], int(end-n+1))
		return true
	})
}
