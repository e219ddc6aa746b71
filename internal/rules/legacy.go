package rules

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/picoscan/internal/types"
)

// MissingConfigPVP is the violation point generated for privacy APIs a legacy
// database expects but the application never calls.
const MissingConfigPVP = "PVP #1"

// TrackingDefaultPVP is the violation point generated when an integrated SDK
// ships next to code that switches analytics or tracking on.
const TrackingDefaultPVP = "PVP #4"

// trackingDefaults are the case-insensitive patterns of code that enables
// analytics or tracking without waiting for consent.
var trackingDefaults = []struct {
	id        string
	signature string
}{
	{"default-analytics-collection", `(?i)setAnalyticsCollectionEnabled`},
	{"default-start-tracking", `(?i)startTracking`},
	{"default-send-analytics", `(?i)send.*analytics`},
	{"default-enable-tracking", `(?i)enable.*tracking`},
}

// legacyLaws maps legacy section keys to law tags, in evaluation order.
var legacyLaws = []struct {
	key string
	law string
}{
	{"gdpr", types.LawGDPR},
	{"us_p", types.LawCCPA},
	{"coppa", types.LawCOPPA},
}

// legacyAPI is one object entry of a legacy section. Extra keys such as
// consentArgsIndex, consentArgsValue and policyArgs are accepted and ignored:
// they describe argument values near a call site, which presence matching
// cannot check.
type legacyAPI struct {
	Clazz  string `yaml:"apiClazzName"`
	Method string `yaml:"apiMethodName"`
}

// ConvertLegacy translates a legacy PICO database (sections init, gdpr, us_p and
// coppa holding strings or {apiClazzName, apiMethodName} objects) into a
// validated Database. SDKs that yield no API pattern are skipped and described
// in the returned warnings.
func ConvertLegacy(data []byte) (*Database, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, &SchemaError{Message: "legacy document is neither valid JSON nor YAML", Cause: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, &SchemaError{Message: "legacy document must be a mapping of SDK names"}
	}
	root := doc.Content[0]

	var defs []types.SDKDefinition
	var warnings []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		var sections map[string]yaml.Node
		if err := root.Content[i+1].Decode(&sections); err != nil {
			return nil, nil, &SchemaError{
				Message: "legacy SDK entry cannot be decoded",
				Fields:  []FieldError{{Field: id, Message: err.Error()}},
			}
		}

		def, err := convertLegacySDK(id, sections)
		if err != nil {
			return nil, nil, err
		}
		if len(def.APIPatterns) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: no API entries, skipped", id))
			continue
		}
		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return nil, warnings, &SchemaError{Message: "legacy document contains no convertible SDK"}
	}
	db, err := New(defs...)
	if err != nil {
		return nil, warnings, err
	}
	return db, warnings, nil
}

func convertLegacySDK(id string, sections map[string]yaml.Node) (types.SDKDefinition, error) {
	def := types.SDKDefinition{ID: id, Laws: []string{}, MetadataRules: []types.MetadataRule{}}
	byName := make(map[string]int)
	ruleIDs := make(map[string]bool)

	items := func(key string) []*yaml.Node {
		n, ok := sections[key]
		if !ok || n.Kind != yaml.SequenceNode {
			return nil
		}
		return n.Content
	}

	addPattern := func(p types.APIPattern) string {
		name := p.Name()
		if i, ok := byName[name]; ok {
			if p.Required() {
				def.APIPatterns[i].Kind = types.KindRequired
			}
			return name
		}
		byName[name] = len(def.APIPatterns)
		def.APIPatterns = append(def.APIPatterns, p)
		return name
	}

	for _, n := range items("init") {
		if n.Kind == yaml.ScalarNode {
			if token := strings.TrimSpace(n.Value); token != "" {
				addPattern(types.APIPattern{Signature: token, Kind: types.KindOptional, Description: "init"})
			}
			continue
		}
		p, ok, err := legacyPattern(id, "init", n, types.KindOptional)
		if err != nil {
			return def, err
		}
		if ok {
			addPattern(p)
		}
	}

	notes := make(map[string][]string)
	for _, section := range legacyLaws {
		entries := items(section.key)
		if len(entries) == 0 {
			continue
		}
		def.Laws = append(def.Laws, section.law)

		for _, n := range entries {
			if n.Kind == yaml.ScalarNode {
				notes[section.key] = append(notes[section.key], n.Value)
				continue
			}
			p, ok, err := legacyPattern(id, section.key, n, types.KindRequired)
			if err != nil {
				return def, err
			}
			if !ok {
				continue
			}
			name := addPattern(p)
			ruleID := fmt.Sprintf("missing-%s-%s", strings.ToLower(section.law), name)
			if ruleIDs[ruleID] {
				continue
			}
			ruleIDs[ruleID] = true
			def.MetadataRules = append(def.MetadataRules, types.MetadataRule{
				RuleID:    ruleID,
				Condition: types.Missing(name),
				PVPID:     MissingConfigPVP,
				Law:       section.law,
				Severity:  types.SeverityWarning,
			})
		}
	}

	if len(def.APIPatterns) > 0 {
		addTrackingDefaults(&def)
	}

	if len(notes) > 0 {
		def.Metadata = make(map[string]string, len(notes))
		keys := make([]string, 0, len(notes))
		for k := range notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			def.Metadata["notes."+k] = strings.Join(notes[k], "; ")
		}
	}
	return def, nil
}

// addTrackingDefaults appends the tracking-default context patterns and the
// rule that raises TrackingDefaultPVP when any of them is found.
func addTrackingDefaults(def *types.SDKDefinition) {
	law := types.LawGDPR
	if len(def.Laws) > 0 {
		law = def.Laws[0]
	}

	conds := make([]types.Condition, 0, len(trackingDefaults))
	for _, td := range trackingDefaults {
		def.APIPatterns = append(def.APIPatterns, types.APIPattern{
			ID:          td.id,
			Signature:   td.signature,
			Kind:        types.KindContext,
			Regex:       true,
			Description: "tracking default",
		})
		conds = append(conds, types.Found(td.id))
	}
	def.MetadataRules = append(def.MetadataRules, types.MetadataRule{
		RuleID:    "tracking-enabled-by-default",
		Condition: types.AnyOf(conds...),
		PVPID:     TrackingDefaultPVP,
		Law:       law,
		Severity:  types.SeverityInfo,
	})
}

func legacyPattern(id, section string, n *yaml.Node, kind types.PatternKind) (types.APIPattern, bool, error) {
	var api legacyAPI
	if err := n.Decode(&api); err != nil {
		return types.APIPattern{}, false, &SchemaError{
			Message: "legacy API entry cannot be decoded",
			Fields:  []FieldError{{Field: id + "." + section, Message: err.Error()}},
		}
	}
	clazz := strings.TrimSpace(api.Clazz)
	method := strings.TrimSpace(api.Method)

	p := types.APIPattern{Kind: kind, Description: section}
	switch {
	case clazz != "" && method != "":
		p.Signature = clazz + "." + method
		p.Aliases = []string{smaliDescriptor(clazz) + "->" + method, method}
	case clazz != "":
		p.Signature = clazz
		p.Aliases = []string{smaliDescriptor(clazz)}
	case method != "":
		p.Signature = method
	default:
		return p, false, nil
	}
	return p, true, nil
}

// smaliDescriptor renders a dotted class name the way smali references it,
// e.g. com.example.Foo becomes Lcom/example/Foo;
func smaliDescriptor(clazz string) string {
	return "L" + strings.ReplaceAll(clazz, ".", "/") + ";"
}
