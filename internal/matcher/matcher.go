package matcher

import (
	"context"
	"fmt"
	"regexp"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/logger"
	"github.com/jonathan/picoscan/internal/types"
)

// Options controls matcher compilation and indexing
type Options struct {
	Workers int // concurrent entries during Index; defaults to GOMAXPROCS
	Logger  hclog.Logger
}

// Matcher holds every signature of a rule database compiled for a single
// pass over each corpus entry. It is immutable and safe for concurrent use.
type Matcher struct {
	opts Options
	log  hclog.Logger

	// patterns are numbered globally; slot i of every per-pattern slice is pattern i
	refs    []patternRef
	bySDK   map[string]map[string]int // sdk id -> pattern name -> global index
	regexes map[int]*regexp.Regexp
	errs    map[int]*PatternError

	auto     *automaton
	literals [][]int // automaton literal index -> global pattern indices
}

type patternRef struct {
	sdk     string
	pattern types.APIPattern
}

// Compile combines the literal signatures and aliases of all SDKs into one
// automaton and compiles regex patterns individually. A regex that fails to
// compile is kept as a PatternError and never matches.
func Compile(defs []types.SDKDefinition, opts Options) *Matcher {
	m := &Matcher{
		opts:    opts,
		log:     logger.OrNull(opts.Logger),
		bySDK:   make(map[string]map[string]int, len(defs)),
		regexes: make(map[int]*regexp.Regexp),
		errs:    make(map[int]*PatternError),
	}

	literalIndex := make(map[string]int)
	var literals []string
	addLiteral := func(lit string, gid int) {
		if lit == "" {
			return
		}
		li, ok := literalIndex[lit]
		if !ok {
			li = len(literals)
			literalIndex[lit] = li
			literals = append(literals, lit)
			m.literals = append(m.literals, nil)
		}
		m.literals[li] = append(m.literals[li], gid)
	}

	for _, def := range defs {
		names := make(map[string]int, len(def.APIPatterns))
		m.bySDK[def.ID] = names
		for _, p := range def.APIPatterns {
			gid := len(m.refs)
			m.refs = append(m.refs, patternRef{sdk: def.ID, pattern: p})
			names[p.Name()] = gid

			if p.Regex {
				re, err := regexp.Compile(p.Signature)
				if err != nil {
					m.errs[gid] = &PatternError{SDK: def.ID, Pattern: p.Name(), Message: "invalid regular expression", Cause: err}
					m.log.Warn("pattern will never match", "sdk", def.ID, "pattern", p.Name(), "error", err)
					continue
				}
				m.regexes[gid] = re
				continue
			}

			addLiteral(p.Signature, gid)
			for _, alias := range p.Aliases {
				addLiteral(alias, gid)
			}
		}
	}

	m.auto = newAutomaton(literals)
	m.log.Debug("matcher compiled", "sdks", len(defs), "patterns", len(m.refs), "literals", len(literals), "regexes", len(m.regexes))
	return m
}

// Errors returns the patterns that failed to compile, in database order.
func (m *Matcher) Errors() []*PatternError {
	var out []*PatternError
	for gid := range m.refs {
		if err, ok := m.errs[gid]; ok {
			out = append(out, err)
		}
	}
	return out
}

// Index is the result of searching one corpus for every compiled pattern.
type Index struct {
	m         *Matcher
	locations [][]types.Location // by global pattern index, ordered by path then offset
}

// Index runs the automaton once over each corpus entry and every regex
// pattern over each entry. Entries are processed concurrently; results are
// merged in entry order so the index is deterministic. Cancellation is
// observed between entries.
func (m *Matcher) Index(ctx context.Context, c *corpus.Corpus) (*Index, error) {
	entries := c.Entries()
	perEntry := make([]map[int][]types.Location, len(entries))

	workers := m.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range entries {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perEntry[i] = m.scanEntry(e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexing cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("indexing cancelled: %w", err)
	}

	idx := &Index{m: m, locations: make([][]types.Location, len(m.refs))}
	for _, hits := range perEntry {
		for gid, locs := range hits {
			idx.locations[gid] = append(idx.locations[gid], locs...)
		}
	}
	m.log.Debug("corpus indexed", "entries", len(entries))
	return idx, nil
}

// scanEntry returns, per global pattern index, the locations of that pattern in e.
func (m *Matcher) scanEntry(e *corpus.Entry) map[int][]types.Location {
	offsets := make(map[int][]int)
	m.auto.scan(e.Text, func(literal, start int) {
		for _, gid := range m.literals[literal] {
			offsets[gid] = append(offsets[gid], start)
		}
	})
	for gid, re := range m.regexes {
		for _, loc := range re.FindAllStringIndex(e.Text, -1) {
			if loc[1] > loc[0] {
				offsets[gid] = append(offsets[gid], loc[0])
			}
		}
	}
	if len(offsets) == 0 {
		return nil
	}

	out := make(map[int][]types.Location, len(offsets))
	for gid, offs := range offsets {
		out[gid] = e.Locations(offs)
	}
	return out
}

// Match produces the evidence for one SDK. Patterns are reported in declared
// order: found if they occur anywhere, missing if Required and absent, and
// omitted if Optional and absent. Context patterns are reported only when a
// pattern of another kind was found. An SDK that was not part of the compiled
// database has all of its Required patterns reported missing.
func (idx *Index) Match(sdk types.SDKDefinition) types.MatchEvidence {
	ev := types.MatchEvidence{
		SDKID:       sdk.ID,
		FoundAPIs:   []string{},
		MissingAPIs: []string{},
		Locations:   make(map[string][]types.Location),
	}

	names, known := idx.m.bySDK[sdk.ID]
	if !known {
		ev.Diagnostics = append(ev.Diagnostics, fmt.Sprintf("SDK %s was not compiled into the matcher", sdk.ID))
	}

	anchored := false
	for _, p := range sdk.APIPatterns {
		if gid, ok := names[p.Name()]; ok && p.Kind != types.KindContext && len(idx.locations[gid]) > 0 {
			anchored = true
			break
		}
	}

	for _, p := range sdk.APIPatterns {
		name := p.Name()
		gid, ok := names[name]
		var locs []types.Location
		if ok {
			if perr, bad := idx.m.errs[gid]; bad {
				ev.Diagnostics = append(ev.Diagnostics, perr.Error())
			}
			locs = idx.locations[gid]
		}

		switch {
		case p.Kind == types.KindContext && !anchored:
		case len(locs) > 0:
			ev.FoundAPIs = append(ev.FoundAPIs, name)
			ev.Locations[name] = append([]types.Location(nil), locs...)
		case p.Required():
			ev.MissingAPIs = append(ev.MissingAPIs, name)
		}
	}
	return ev
}

// Match is a convenience for matching a single SDK against a corpus.
func Match(ctx context.Context, c *corpus.Corpus, sdk types.SDKDefinition) (types.MatchEvidence, error) {
	idx, err := Compile([]types.SDKDefinition{sdk}, Options{}).Index(ctx, c)
	if err != nil {
		return types.MatchEvidence{}, err
	}
	return idx.Match(sdk), nil
}
