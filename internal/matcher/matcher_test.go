package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	literal string
	start   int
}

func scanAll(literals []string, text string) []hit {
	a := newAutomaton(literals)
	var hits []hit
	a.scan(text, func(literal, start int) {
		hits = append(hits, hit{literals[literal], start})
	})
	return hits
}

func TestAutomaton_OverlappingMatches(t *testing.T) {
	hits := scanAll([]string{"he", "she", "his", "hers"}, "ushers")
	assert.ElementsMatch(t, []hit{{"she", 1}, {"he", 2}, {"hers", 2}}, hits)
}

func TestAutomaton_RepeatedAndNested(t *testing.T) {
	hits := scanAll([]string{"aa", "a"}, "aaa")
	assert.ElementsMatch(t, []hit{
		{"a", 0}, {"a", 1}, {"a", 2},
		{"aa", 0}, {"aa", 1},
	}, hits)
}

func TestAutomaton_OverlapsAcrossSignatures(t *testing.T) {
	literals := []string{"aa", "a", "AdvertisingIdClient", "AdvertisingIdClient.getAdvertisingIdInfo", "getAdvertisingIdInfo"}
	hits := scanAll(literals, "aaaa AdvertisingIdClient.getAdvertisingIdInfo")

	var starts []int
	for _, h := range hits {
		starts = append(starts, h.start)
	}
	assert.ElementsMatch(t, []int{0, 0, 1, 1, 2, 2, 3, 5, 5, 25}, starts)
	assert.Contains(t, hits, hit{"AdvertisingIdClient.getAdvertisingIdInfo", 5})
	assert.Contains(t, hits, hit{"getAdvertisingIdInfo", 25})
}

func TestAutomaton_NoPatterns(t *testing.T) {
	assert.Empty(t, scanAll(nil, "anything"))
	assert.Empty(t, scanAll([]string{""}, "anything"))
}

func admobSDK() types.SDKDefinition {
	return types.SDKDefinition{
		ID:   "admob",
		Laws: []string{types.LawGDPR},
		APIPatterns: []types.APIPattern{
			{ID: "getAdId", Signature: "getAdvertisingIdInfo", Kind: types.KindRequired},
			{ID: "consent", Signature: "requestConsentInfoUpdate", Kind: types.KindRequired,
				Aliases: []string{"Lcom/google/android/ump/ConsentInformation;->requestConsentInfoUpdate"}},
			{ID: "childFlag", Signature: "setTagForChildDirectedTreatment", Kind: types.KindOptional},
		},
	}
}

func TestMatch_FoundAndMissing(t *testing.T) {
	c := corpus.FromTexts(map[string]string{
		"smali/Ads.smali":  "invoke-virtual {v0}, Lcom/google/ads/AdvertisingIdClient;->getAdvertisingIdInfo\n",
		"smali/Main.smali": "nothing here",
	})

	ev, err := Match(context.Background(), c, admobSDK())
	require.NoError(t, err)

	assert.Equal(t, "admob", ev.SDKID)
	assert.Equal(t, []string{"getAdId"}, ev.FoundAPIs)
	assert.Equal(t, []string{"consent"}, ev.MissingAPIs)
	assert.Equal(t, []types.Location{{Path: "smali/Ads.smali", Line: 1, Offset: 59}}, ev.Locations["getAdId"])
	assert.Empty(t, ev.Diagnostics)
}

func TestMatch_NothingFound(t *testing.T) {
	c := corpus.FromTexts(map[string]string{"a.txt": "hello"})

	ev, err := Match(context.Background(), c, admobSDK())
	require.NoError(t, err)
	assert.False(t, ev.Used())
	assert.Empty(t, ev.FoundAPIs)
	assert.Equal(t, []string{"getAdId", "consent"}, ev.MissingAPIs, "optional patterns are never missing")
}

func TestMatch_AliasHitsMergedAndSorted(t *testing.T) {
	c := corpus.FromTexts(map[string]string{
		"b.smali": "Lcom/google/android/ump/ConsentInformation;->requestConsentInfoUpdate",
		"a.java":  "info.requestConsentInfoUpdate(params);",
	})

	ev, err := Match(context.Background(), c, admobSDK())
	require.NoError(t, err)

	assert.Equal(t, []types.Location{
		{Path: "a.java", Line: 1, Offset: 5},
		{Path: "b.smali", Line: 1, Offset: 0},
		{Path: "b.smali", Line: 1, Offset: 45},
	}, ev.Locations["consent"])
}

func TestMatch_DuplicateSpellingsCollapse(t *testing.T) {
	sdk := types.SDKDefinition{
		ID: "dup",
		APIPatterns: []types.APIPattern{
			{Signature: "trackEvent", Kind: types.KindRequired, Aliases: []string{"trackEvent"}},
		},
	}
	c := corpus.FromTexts(map[string]string{"x": "trackEvent"})

	ev, err := Match(context.Background(), c, sdk)
	require.NoError(t, err)
	assert.Len(t, ev.Locations["trackEvent"], 1)
}

func TestMatch_DisjointAndCovering(t *testing.T) {
	c := corpus.FromTexts(map[string]string{
		"x": "getAdvertisingIdInfo setTagForChildDirectedTreatment",
	})
	sdk := admobSDK()

	ev, err := Match(context.Background(), c, sdk)
	require.NoError(t, err)

	for _, f := range ev.FoundAPIs {
		assert.NotContains(t, ev.MissingAPIs, f)
	}
	for _, p := range sdk.APIPatterns {
		if p.Required() {
			assert.True(t, ev.IsFound(p.Name()) || ev.IsMissing(p.Name()), p.Name())
		} else {
			assert.NotContains(t, ev.MissingAPIs, p.Name())
		}
	}
	assert.Equal(t, []string{"getAdId", "childFlag"}, ev.FoundAPIs)
}

func TestIndex_IdempotentAcrossRunsAndWorkers(t *testing.T) {
	texts := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		texts[name+".smali"] = "getAdvertisingIdInfo\nrequestConsentInfoUpdate\ngetAdvertisingIdInfo"
	}
	c := corpus.FromTexts(texts)
	defs := []types.SDKDefinition{admobSDK()}

	first, err := Compile(defs, Options{Workers: 1}).Index(context.Background(), c)
	require.NoError(t, err)
	second, err := Compile(defs, Options{Workers: 8}).Index(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, first.Match(defs[0]), second.Match(defs[0]))
	assert.Equal(t, first.Match(defs[0]), first.Match(defs[0]))
	assert.Len(t, first.Match(defs[0]).Locations["getAdId"], 16)
}

func TestMatch_SharedLiteralAcrossSDKs(t *testing.T) {
	one := types.SDKDefinition{ID: "one", APIPatterns: []types.APIPattern{{Signature: "trackEvent", Kind: types.KindRequired}}}
	two := types.SDKDefinition{ID: "two", APIPatterns: []types.APIPattern{{Signature: "trackEvent", Kind: types.KindOptional}}}
	c := corpus.FromTexts(map[string]string{"x": "trackEvent"})

	idx, err := Compile([]types.SDKDefinition{one, two}, Options{}).Index(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"trackEvent"}, idx.Match(one).FoundAPIs)
	assert.Equal(t, []string{"trackEvent"}, idx.Match(two).FoundAPIs)
}

func TestMatch_RegexPatterns(t *testing.T) {
	sdk := types.SDKDefinition{
		ID: "firebase",
		APIPatterns: []types.APIPattern{
			{ID: "enable", Signature: `setAnalyticsCollectionEnabled\(\s*true`, Kind: types.KindOptional, Regex: true},
			{ID: "broken", Signature: `(unterminated`, Kind: types.KindRequired, Regex: true},
			{ID: "brokenOptional", Signature: `[z-a]`, Kind: types.KindOptional, Regex: true},
		},
	}
	c := corpus.FromTexts(map[string]string{"App.java": "a();\nsetAnalyticsCollectionEnabled( true);"})

	m := Compile([]types.SDKDefinition{sdk}, Options{})
	require.Len(t, m.Errors(), 2)
	assert.Equal(t, "broken", m.Errors()[0].Pattern)

	idx, err := m.Index(context.Background(), c)
	require.NoError(t, err)
	ev := idx.Match(sdk)

	assert.Equal(t, []string{"enable"}, ev.FoundAPIs)
	assert.Equal(t, 2, ev.Locations["enable"][0].Line)
	assert.Equal(t, []string{"broken"}, ev.MissingAPIs)
	require.Len(t, ev.Diagnostics, 2)
	assert.Contains(t, ev.Diagnostics[0], "invalid regular expression")
}

func TestMatch_ContextPatterns(t *testing.T) {
	sdk := types.SDKDefinition{
		ID: "firebase",
		APIPatterns: []types.APIPattern{
			{ID: "init", Signature: "FirebaseAnalytics.getInstance", Kind: types.KindOptional},
			{ID: "tracking", Signature: `(?i)enable\w*tracking`, Kind: types.KindContext, Regex: true},
		},
	}

	tests := []struct {
		name    string
		text    string
		found   []string
		located []string
	}{
		{"context alone leaves sdk unused", "tracker.enableAutoTracking(true);", []string{}, nil},
		{"context after sdk evidence", "FirebaseAnalytics.getInstance(ctx);\nEnableTracking();", []string{"init", "tracking"}, []string{"init", "tracking"}},
		{"sdk evidence without context", "FirebaseAnalytics.getInstance(ctx);", []string{"init"}, []string{"init"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Match(context.Background(), corpus.FromTexts(map[string]string{"App.java": tt.text}), sdk)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ev.FoundAPIs)
			assert.Empty(t, ev.MissingAPIs)
			assert.False(t, ev.Used() && len(tt.located) == 0)
			for _, name := range tt.located {
				assert.NotEmpty(t, ev.Locations[name])
			}
			assert.Len(t, ev.Locations, len(tt.located))
		})
	}
}

func TestMatch_UnknownSDK(t *testing.T) {
	c := corpus.FromTexts(map[string]string{"x": "getAdvertisingIdInfo"})
	idx, err := Compile(nil, Options{}).Index(context.Background(), c)
	require.NoError(t, err)

	ev := idx.Match(admobSDK())
	assert.Empty(t, ev.FoundAPIs)
	assert.Equal(t, []string{"getAdId", "consent"}, ev.MissingAPIs)
	require.Len(t, ev.Diagnostics, 1)
}

func TestIndex_Cancelled(t *testing.T) {
	c := corpus.FromTexts(map[string]string{"x": "getAdvertisingIdInfo"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compile([]types.SDKDefinition{admobSDK()}, Options{}).Index(ctx, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPatternError(t *testing.T) {
	cause := errors.New("bad")
	err := &PatternError{SDK: "s", Pattern: "p", Message: "invalid regular expression", Cause: cause}
	assert.Equal(t, "pattern s/p: invalid regular expression: bad", err.Error())
	assert.ErrorIs(t, err, cause)
}
