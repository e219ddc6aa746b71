package rules

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/picoscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const admobJSON = `{
  "admob": {
    "displayName": "Google AdMob",
    "laws": ["GDPR", "COPPA"],
    "apiPatterns": [
      {"id": "getAdId", "signature": "getAdvertisingIdInfo", "kind": "required"},
      {"id": "consent", "signature": "ConsentInformation.requestConsentInfoUpdate", "kind": "required"},
      {"id": "childDirected", "signature": "setTagForChildDirectedTreatment", "kind": "optional"}
    ],
    "metadataRules": [
      {"ruleId": "no-consent", "pvpId": "PVP-GDPR-1", "law": "GDPR", "severity": "critical",
       "condition": {"all": [{"found": "getAdId"}, {"missing": "consent"}]}},
      {"ruleId": "no-child-flag", "pvpId": "PVP-COPPA-1", "law": "COPPA", "severity": "warning",
       "condition": {"absent": "childDirected"}}
    ]
  },
  "firebase": {
    "laws": ["GDPR"],
    "apiPatterns": [{"signature": "setAnalyticsCollectionEnabled", "kind": "required"}],
    "metadataRules": []
  }
}`

func TestParse_JSON(t *testing.T) {
	db, err := Parse([]byte(admobJSON))
	require.NoError(t, err)
	require.Equal(t, 2, db.Len())

	defs := db.AllDefinitions()
	assert.Equal(t, "admob", defs[0].ID)
	assert.Equal(t, "firebase", defs[1].ID)

	admob, ok := db.Definition("admob")
	require.True(t, ok)
	assert.Equal(t, "Google AdMob", admob.Title())
	assert.Equal(t, []string{"GDPR", "COPPA"}, admob.Laws)
	require.Len(t, admob.MetadataRules, 2)
	assert.Equal(t, types.AllOf(types.Found("getAdId"), types.Missing("consent")), admob.MetadataRules[0].Condition)
	assert.Equal(t, types.SeverityCritical, admob.MetadataRules[0].Severity)

	_, ok = db.Definition("unknown")
	assert.False(t, ok)
}

func TestParse_YAMLKeepsDocumentOrder(t *testing.T) {
	doc := `
zeta:
  laws: [CCPA]
  apiPatterns:
    - signature: trackEvent
      kind: required
  metadataRules: []
alpha:
  laws: [GDPR]
  apiPatterns:
    - signature: logEvent
      kind: optional
      aliases: ["Lcom/alpha/Log;->event"]
  metadataRules:
    - ruleId: r1
      pvpId: PVP-1
      law: GDPR
      severity: info
      condition:
        not:
          found: logEvent
`
	db, err := Parse([]byte(doc))
	require.NoError(t, err)

	defs := db.AllDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "zeta", defs[0].ID)
	assert.Equal(t, "alpha", defs[1].ID)
	assert.Equal(t, []string{"Lcom/alpha/Log;->event"}, defs[1].APIPatterns[0].Aliases)
	assert.Equal(t, types.Negate(types.Found("logEvent")), defs[1].MetadataRules[0].Condition)
}

func TestParse_MissingLawsIsSchemaError(t *testing.T) {
	doc := `{"admob": {"apiPatterns": [{"signature": "getAdvertisingIdInfo", "kind": "required"}], "metadataRules": []}}`

	db, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Nil(t, db)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.True(t, schemaErr.HasField("admob"))
	assert.Contains(t, schemaErr.Error(), "laws")
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		field   string
		message string
	}{
		{
			name:    "unknown kind",
			doc:     `{"a": {"laws": [], "metadataRules": [], "apiPatterns": [{"signature": "x", "kind": "sometimes"}]}}`,
			field:   "a.apiPatterns.0.kind",
			message: "",
		},
		{
			name:    "lower-case law",
			doc:     `{"a": {"laws": ["gdpr"], "metadataRules": [], "apiPatterns": [{"signature": "x", "kind": "required"}]}}`,
			field:   "a.laws.0",
			message: "",
		},
		{
			name: "unknown reference",
			doc: `{"a": {"laws": [], "apiPatterns": [{"signature": "x", "kind": "required"}],
				"metadataRules": [{"ruleId": "r", "pvpId": "P", "law": "GDPR", "severity": "info", "condition": {"found": "y"}}]}}`,
			field:   "a.metadataRules.0.condition",
			message: `unknown pattern "y"`,
		},
		{
			name: "missing on optional pattern",
			doc: `{"a": {"laws": [], "apiPatterns": [{"signature": "x", "kind": "optional"}],
				"metadataRules": [{"ruleId": "r", "pvpId": "P", "law": "GDPR", "severity": "info", "condition": {"missing": "x"}}]}}`,
			field:   "a.metadataRules.0.condition",
			message: "only to required patterns",
		},
		{
			name: "duplicate rule id",
			doc: `{"a": {"laws": [], "apiPatterns": [{"signature": "x", "kind": "required"}],
				"metadataRules": [
					{"ruleId": "r", "pvpId": "P", "law": "GDPR", "severity": "info", "condition": {"found": "x"}},
					{"ruleId": "r", "pvpId": "Q", "law": "GDPR", "severity": "info", "condition": {"absent": "x"}}]}}`,
			field:   "a.metadataRules.1.ruleId",
			message: `duplicate rule id "r"`,
		},
		{
			name: "duplicate pattern id",
			doc: `{"a": {"laws": [], "metadataRules": [], "apiPatterns": [
				{"id": "p", "signature": "x", "kind": "required"},
				{"id": "p", "signature": "y", "kind": "optional"}]}}`,
			field:   "a.apiPatterns.1",
			message: `duplicate pattern id "p"`,
		},
		{
			name:    "duplicate sdk",
			doc:     "a: {laws: [], metadataRules: [], apiPatterns: [{signature: x, kind: required}]}\na: {laws: [], metadataRules: [], apiPatterns: [{signature: y, kind: required}]}\n",
			field:   "a",
			message: "defined again",
		},
		{
			name:    "two operators in one condition",
			doc:     `{"a": {"laws": [], "apiPatterns": [{"signature": "x", "kind": "required"}], "metadataRules": [{"ruleId": "r", "pvpId": "P", "law": "GDPR", "severity": "info", "condition": {"found": "x", "absent": "x"}}]}}`,
			field:   "a.metadataRules.0.condition",
			message: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
			assert.True(t, schemaErr.HasField(tt.field), "fields: %+v", schemaErr.Fields)
			if tt.message != "" {
				assert.Contains(t, schemaErr.Error(), tt.message)
			}
		})
	}
}

func TestParse_NotADocument(t *testing.T) {
	for _, doc := range []string{"", "{not json", "[1, 2]"} {
		_, err := Parse([]byte(doc))
		var schemaErr *SchemaError
		assert.True(t, errors.As(err, &schemaErr), "document %q", doc)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pico.yaml")
	require.NoError(t, os.WriteFile(path, []byte(admobJSON), 0644))

	db, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Source())

	_, err = Load(filepath.Join(dir, "missing.json"))
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNew_ValidatesDefinitions(t *testing.T) {
	def := types.SDKDefinition{
		ID:          "tracker",
		APIPatterns: []types.APIPattern{{Signature: "track", Kind: types.KindRequired}},
		MetadataRules: []types.MetadataRule{
			{RuleID: "r", Condition: types.Found("nope"), PVPID: "P", Law: types.LawCCPA, Severity: types.SeverityInfo},
		},
	}
	_, err := New(def)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))

	def.MetadataRules[0].Condition = types.Found("track")
	db, err := New(def)
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())
}

func TestMarshal_RoundTripsInOrder(t *testing.T) {
	db, err := Parse([]byte(admobJSON))
	require.NoError(t, err)

	data, err := json.Marshal(db)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, db.AllDefinitions(), again.AllDefinitions())

	out, err := yaml.Marshal(db)
	require.NoError(t, err)
	fromYAML, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, db.AllDefinitions(), fromYAML.AllDefinitions())
}
