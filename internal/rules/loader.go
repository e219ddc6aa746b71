package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/picoscan/internal/schemas"
	"github.com/jonathan/picoscan/internal/types"
	schemafiles "github.com/jonathan/picoscan/schemas"
)

var lawPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_-]*$`)

// Database is a validated, immutable rule database. SDKs keep document order.
type Database struct {
	source string
	defs   []types.SDKDefinition
	index  map[string]int
}

// Load reads and validates a rule database file in JSON or YAML form.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Source: path, Message: "cannot read rule database", Cause: err}
	}
	return parse(path, data)
}

// Parse validates an in-memory rule database document.
func Parse(data []byte) (*Database, error) {
	return parse("", data)
}

// New builds a database from definitions, applying the same validation as Load.
func New(defs ...types.SDKDefinition) (*Database, error) {
	data, err := (&Database{defs: defs}).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode definitions: %w", err)
	}
	return Parse(data)
}

func parse(source string, data []byte) (*Database, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Source: source, Message: "document is neither valid JSON nor YAML", Cause: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &SchemaError{Source: source, Message: "document is empty"}
	}
	root := doc.Content[0]

	if dups := duplicateKeys(root); len(dups) > 0 {
		return nil, &SchemaError{Source: source, Message: "duplicate SDK identifiers", Fields: dups}
	}

	var generic any
	if err := root.Decode(&generic); err != nil {
		return nil, &SchemaError{Source: source, Message: "document cannot be decoded", Cause: err}
	}
	if err := schemas.ValidateDocument(schemafiles.PicoMetaDB, generic); err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			fields := make([]FieldError, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, FieldError{Field: fe.Field, Message: fe.Message})
			}
			return nil, &SchemaError{Source: source, Message: "schema validation failed", Fields: fields}
		}
		return nil, &SchemaError{Source: source, Message: "schema validation could not run", Cause: err}
	}

	db := &Database{source: source, index: make(map[string]int)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		var def types.SDKDefinition
		if err := root.Content[i+1].Decode(&def); err != nil {
			return nil, &SchemaError{Source: source, Message: fmt.Sprintf("SDK %q cannot be decoded", id), Cause: err}
		}
		def.ID = id
		db.index[id] = len(db.defs)
		db.defs = append(db.defs, def)
	}

	var fields []FieldError
	for _, def := range db.defs {
		fields = append(fields, checkDefinition(def)...)
	}
	if len(fields) > 0 {
		return nil, &SchemaError{Source: source, Message: "semantic validation failed", Fields: fields}
	}
	return db, nil
}

func duplicateKeys(root *yaml.Node) []FieldError {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	seen := make(map[string]bool)
	var fields []FieldError
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if seen[key.Value] {
			fields = append(fields, FieldError{
				Field:   key.Value,
				Message: fmt.Sprintf("SDK defined again at line %d", key.Line),
			})
		}
		seen[key.Value] = true
	}
	return fields
}

// checkDefinition runs the checks JSON Schema cannot express.
func checkDefinition(def types.SDKDefinition) []FieldError {
	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: def.ID + "." + field, Message: fmt.Sprintf(format, args...)})
	}

	patterns := make(map[string]types.APIPattern, len(def.APIPatterns))
	for i, p := range def.APIPatterns {
		if _, dup := patterns[p.Name()]; dup {
			add(fmt.Sprintf("apiPatterns.%d", i), "duplicate pattern id %q", p.Name())
			continue
		}
		patterns[p.Name()] = p
	}

	for i, law := range def.Laws {
		if !lawPattern.MatchString(law) {
			add(fmt.Sprintf("laws.%d", i), "malformed law tag %q", law)
		}
	}

	ruleIDs := make(map[string]bool, len(def.MetadataRules))
	for i, r := range def.MetadataRules {
		field := fmt.Sprintf("metadataRules.%d", i)
		if ruleIDs[r.RuleID] {
			add(field+".ruleId", "duplicate rule id %q", r.RuleID)
		}
		ruleIDs[r.RuleID] = true

		if !lawPattern.MatchString(r.Law) {
			add(field+".law", "malformed law tag %q", r.Law)
		}
		for _, msg := range checkCondition(r.Condition, patterns) {
			add(field+".condition", "%s", msg)
		}
	}
	return fields
}

func checkCondition(c types.Condition, patterns map[string]types.APIPattern) []string {
	var problems []string
	tags := 0
	for _, set := range []bool{c.Found != "", c.Missing != "", c.Absent != "", c.All != nil, c.Any != nil, c.Not != nil} {
		if set {
			tags++
		}
	}
	if tags != 1 {
		return []string{fmt.Sprintf("condition must have exactly one operator, found %d", tags)}
	}

	switch {
	case c.Found != "":
		if _, ok := patterns[c.Found]; !ok {
			problems = append(problems, fmt.Sprintf("references unknown pattern %q", c.Found))
		}
	case c.Absent != "":
		if _, ok := patterns[c.Absent]; !ok {
			problems = append(problems, fmt.Sprintf("references unknown pattern %q", c.Absent))
		}
	case c.Missing != "":
		p, ok := patterns[c.Missing]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("references unknown pattern %q", c.Missing))
		case !p.Required():
			problems = append(problems, fmt.Sprintf("missing applies only to required patterns, %q is %s", c.Missing, p.Kind))
		}
	case c.Not != nil:
		problems = append(problems, checkCondition(*c.Not, patterns)...)
	default:
		subs := c.All
		if c.Any != nil {
			subs = c.Any
		}
		if len(subs) == 0 {
			problems = append(problems, "all/any needs at least one operand")
		}
		for _, sub := range subs {
			problems = append(problems, checkCondition(sub, patterns)...)
		}
	}
	return problems
}

// Source returns the path the database was loaded from, if any.
func (db *Database) Source() string { return db.source }

// Len returns the number of SDK definitions.
func (db *Database) Len() int { return len(db.defs) }

// AllDefinitions returns the SDK definitions in load order.
func (db *Database) AllDefinitions() []types.SDKDefinition {
	out := make([]types.SDKDefinition, len(db.defs))
	copy(out, db.defs)
	return out
}

// Definition looks up an SDK by id.
func (db *Database) Definition(id string) (types.SDKDefinition, bool) {
	i, ok := db.index[id]
	if !ok {
		return types.SDKDefinition{}, false
	}
	return db.defs[i], true
}

// MarshalJSON encodes the database as an object keyed by SDK id, preserving order.
func (db *Database) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, def := range db.defs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if def.Laws == nil {
			def.Laws = []string{}
		}
		if def.MetadataRules == nil {
			def.MetadataRules = []types.MetadataRule{}
		}
		key, err := json.Marshal(def.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("failed to encode SDK %s: %w", def.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the database as an ordered YAML mapping.
func (db *Database) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, def := range db.defs {
		val := &yaml.Node{}
		if err := val.Encode(def); err != nil {
			return nil, fmt.Errorf("failed to encode SDK %s: %w", def.ID, err)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: def.ID}, val)
	}
	return root, nil
}
