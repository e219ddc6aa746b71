// Package types provides type definitions for structured data used throughout the picoscan system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Well-known law tags. Rule databases may declare others.
const (
	LawGDPR  = "GDPR"
	LawCCPA  = "CCPA"
	LawCOPPA = "COPPA"
)

// PatternKind marks whether an API pattern is expected to be present once the SDK is integrated
type PatternKind string

const (
	// KindRequired patterns are reported as missing when absent from the corpus
	KindRequired PatternKind = "required"
	// KindOptional patterns carry no weight when absent
	KindOptional PatternKind = "optional"
	// KindContext patterns are reported only for an SDK that some other pattern
	// already shows to be used; on their own they never mark an SDK as used
	KindContext PatternKind = "context"
)

// Severity grades a policy violation point
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from info (1) to critical (3). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank() && s.Rank() > 0
}

// APIPattern is a single SDK API signature searched for in the corpus
type APIPattern struct {
	ID          string      `json:"id,omitempty" yaml:"id,omitempty"`
	Signature   string      `json:"signature" yaml:"signature"`
	Kind        PatternKind `json:"kind" yaml:"kind"`
	Regex       bool        `json:"regex,omitempty" yaml:"regex,omitempty"`
	Aliases     []string    `json:"aliases,omitempty" yaml:"aliases,omitempty"` // extra literal spellings, e.g. smali descriptors
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

// Name returns the identifier reported in evidence and referenced by rule conditions.
func (p APIPattern) Name() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Signature
}

// Required reports whether absence of the pattern counts as a missing API.
func (p APIPattern) Required() bool {
	return p.Kind == KindRequired
}

// Condition is a node of the rule predicate language. Exactly one field is set.
type Condition struct {
	Found   string      `json:"found,omitempty" yaml:"found,omitempty"`
	Missing string      `json:"missing,omitempty" yaml:"missing,omitempty"`
	Absent  string      `json:"absent,omitempty" yaml:"absent,omitempty"`
	All     []Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any     []Condition `json:"any,omitempty" yaml:"any,omitempty"`
	Not     *Condition  `json:"not,omitempty" yaml:"not,omitempty"`
}

// Found returns a condition that holds when the pattern was found.
func Found(id string) Condition { return Condition{Found: id} }

// Missing returns a condition that holds when the required pattern was missing.
func Missing(id string) Condition { return Condition{Missing: id} }

// Absent returns a condition that holds when the pattern was not found.
func Absent(id string) Condition { return Condition{Absent: id} }

// AllOf returns a conjunction.
func AllOf(conds ...Condition) Condition { return Condition{All: conds} }

// AnyOf returns a disjunction.
func AnyOf(conds ...Condition) Condition { return Condition{Any: conds} }

// Negate returns the negation of c.
func Negate(c Condition) Condition { return Condition{Not: &c} }

// References returns every pattern id mentioned by the condition tree, in traversal order.
func (c Condition) References() []string {
	var refs []string
	c.walk(func(n Condition) {
		switch {
		case n.Found != "":
			refs = append(refs, n.Found)
		case n.Missing != "":
			refs = append(refs, n.Missing)
		case n.Absent != "":
			refs = append(refs, n.Absent)
		}
	})
	return refs
}

func (c Condition) walk(fn func(Condition)) {
	fn(c)
	for _, sub := range c.All {
		sub.walk(fn)
	}
	for _, sub := range c.Any {
		sub.walk(fn)
	}
	if c.Not != nil {
		c.Not.walk(fn)
	}
}

// MetadataRule declares when a policy violation point fires for an SDK
type MetadataRule struct {
	RuleID    string    `json:"ruleId" yaml:"ruleId"`
	Condition Condition `json:"condition" yaml:"condition"`
	PVPID     string    `json:"pvpId" yaml:"pvpId"`
	Law       string    `json:"law" yaml:"law"`
	Severity  Severity  `json:"severity" yaml:"severity"`
}

// SDKDefinition is one SDK entry of the rule database
type SDKDefinition struct {
	ID            string            `json:"-" yaml:"-"` // the mapping key in the database document
	DisplayName   string            `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	APIPatterns   []APIPattern      `json:"apiPatterns" yaml:"apiPatterns"`
	Laws          []string          `json:"laws" yaml:"laws"`
	MetadataRules []MetadataRule    `json:"metadataRules" yaml:"metadataRules"`
	ManifestKeys  []string          `json:"manifestKeys,omitempty" yaml:"manifestKeys,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Pattern looks up a pattern by its name.
func (d SDKDefinition) Pattern(name string) (APIPattern, bool) {
	for _, p := range d.APIPatterns {
		if p.Name() == name {
			return p, true
		}
	}
	return APIPattern{}, false
}

// Title returns the display name, falling back to the SDK id.
func (d SDKDefinition) Title() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}
