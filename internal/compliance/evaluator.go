// Package compliance evaluates an SDK's metadata rules against its match evidence.
package compliance

import (
	"fmt"
	"strings"

	"github.com/jonathan/picoscan/internal/types"
)

// Evaluate returns the findings for every rule of sdk whose condition holds,
// in declared rule order. Rules are evaluated exhaustively; there is no
// short-circuit after the first finding. An SDK with no found API is unused
// and yields no findings.
func Evaluate(sdk types.SDKDefinition, ev types.MatchEvidence) []types.PVPFinding {
	findings := []types.PVPFinding{}
	if ev.SDKID != sdk.ID || !ev.Used() {
		return findings
	}

	for _, rule := range sdk.MetadataRules {
		if !resolves(sdk, rule.Condition) {
			continue
		}
		if !holds(sdk, ev, rule.Condition) {
			continue
		}
		findings = append(findings, types.PVPFinding{
			PVPID:           rule.PVPID,
			SDKID:           sdk.ID,
			Law:             rule.Law,
			Severity:        rule.Severity,
			TriggeringRule:  rule.RuleID,
			EvidenceSummary: summarize(sdk, ev, rule.Condition),
		})
	}
	return findings
}

// resolves reports whether every pattern the condition names belongs to sdk.
// A rule that reaches outside its own SDK never fires.
func resolves(sdk types.SDKDefinition, c types.Condition) bool {
	for _, ref := range c.References() {
		if _, ok := sdk.Pattern(ref); !ok {
			return false
		}
	}
	return true
}

func holds(sdk types.SDKDefinition, ev types.MatchEvidence, c types.Condition) bool {
	switch {
	case c.Found != "":
		return ev.IsFound(c.Found)
	case c.Missing != "":
		p, _ := sdk.Pattern(c.Missing)
		return p.Required() && ev.IsMissing(c.Missing)
	case c.Absent != "":
		return !ev.IsFound(c.Absent)
	case c.Not != nil:
		return !holds(sdk, ev, *c.Not)
	case len(c.All) > 0:
		for _, sub := range c.All {
			if !holds(sdk, ev, sub) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			if holds(sdk, ev, sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// summarize names each pattern the condition relies on and its state, with
// the first location of found patterns.
func summarize(sdk types.SDKDefinition, ev types.MatchEvidence, c types.Condition) string {
	seen := make(map[string]bool)
	var parts []string
	for _, ref := range c.References() {
		if seen[ref] {
			continue
		}
		seen[ref] = true

		switch {
		case ev.IsFound(ref):
			if loc, ok := ev.FirstLocation(ref); ok {
				parts = append(parts, fmt.Sprintf("found %s at %s:%d", ref, loc.Path, loc.Line))
			} else {
				parts = append(parts, "found "+ref)
			}
		case ev.IsMissing(ref):
			parts = append(parts, "missing "+ref)
		default:
			parts = append(parts, "absent "+ref)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no pattern evidence", sdk.ID)
	}
	return strings.Join(parts, "; ")
}
