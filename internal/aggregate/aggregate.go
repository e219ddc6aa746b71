// Package aggregate turns per-SDK evidence and findings into scan result entries.
package aggregate

import (
	"sort"

	"github.com/jonathan/picoscan/internal/types"
)

// Aggregate builds the result entry for one SDK. It is a pure function of its
// inputs and never returns nil slices, so the JSON form always carries arrays.
//
// laws is the SDK's declared laws in order, followed by any other law of a
// fired finding. An SDK without found APIs is reported as not used with empty
// found, missing and triggered lists.
func Aggregate(sdk types.SDKDefinition, ev types.MatchEvidence, findings []types.PVPFinding) types.SDKResult {
	res := types.SDKResult{
		SDK:           sdk.ID,
		FoundAPIs:     []string{},
		MissingAPIs:   []string{},
		PVPsTriggered: []types.PVPFinding{},
		Metadata: types.SDKMetadata{
			DisplayName: sdk.Title(),
			Description: sdk.Description,
			Status:      types.StatusNotUsed,
			Attributes:  copyStrings(sdk.Metadata),
			Diagnostics: append([]string(nil), ev.Diagnostics...),
		},
	}

	used := ev.Used()
	if used {
		res.Metadata.Status = types.StatusUsed
		res.FoundAPIs = append(res.FoundAPIs, ev.FoundAPIs...)
		res.MissingAPIs = append(res.MissingAPIs, ev.MissingAPIs...)
		res.PVPsTriggered = append(res.PVPsTriggered, findings...)
		res.Metadata.Locations = copyLocations(ev.Locations)
	}

	res.Laws = mergeLaws(sdk.Laws, res.PVPsTriggered)
	return res
}

// WithManifest returns a copy of res whose metadata carries the manifest values
// of the SDK's configured keys. Keys absent from the manifest are skipped.
func WithManifest(res types.SDKResult, sdk types.SDKDefinition, values map[string]string) types.SDKResult {
	var manifest map[string]string
	for _, key := range sdk.ManifestKeys {
		v, ok := values[key]
		if !ok {
			continue
		}
		if manifest == nil {
			manifest = make(map[string]string)
		}
		manifest[key] = v
	}
	res.Metadata.Manifest = manifest
	return res
}

// Assemble builds the scan result. results must already be in rule database order.
func Assemble(scanID, root string, app *types.AppInfo, results []types.SDKResult, diagnostics []string) types.ScanResult {
	out := types.ScanResult{
		ScanID:     scanID,
		Root:       root,
		App:        app,
		SDKResults: make([]types.SDKResult, len(results)),
	}
	copy(out.SDKResults, results)
	if len(diagnostics) > 0 {
		out.Diagnostics = append([]string(nil), diagnostics...)
	}
	return out
}

// Summary counts used SDKs and findings by severity.
type Summary struct {
	SDKs       int
	UsedSDKs   int
	Findings   int
	BySeverity map[types.Severity]int
	ByLaw      map[string]int
}

// Summarize computes the counters shown at the end of a scan.
func Summarize(result types.ScanResult) Summary {
	s := Summary{
		SDKs:       len(result.SDKResults),
		BySeverity: make(map[types.Severity]int),
		ByLaw:      make(map[string]int),
	}
	for _, sr := range result.SDKResults {
		if sr.Metadata.Status == types.StatusUsed {
			s.UsedSDKs++
		}
		for _, f := range sr.PVPsTriggered {
			s.Findings++
			s.BySeverity[f.Severity]++
			s.ByLaw[f.Law]++
		}
	}
	return s
}

// Laws returns the law tags of a summary in sorted order.
func (s Summary) Laws() []string {
	out := make([]string, 0, len(s.ByLaw))
	for law := range s.ByLaw {
		out = append(out, law)
	}
	sort.Strings(out)
	return out
}

func mergeLaws(declared []string, findings []types.PVPFinding) []string {
	out := make([]string, 0, len(declared))
	seen := make(map[string]bool, len(declared))
	for _, law := range declared {
		if !seen[law] {
			seen[law] = true
			out = append(out, law)
		}
	}
	for _, f := range findings {
		if !seen[f.Law] {
			seen[f.Law] = true
			out = append(out, f.Law)
		}
	}
	return out
}

func copyStrings(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyLocations(m map[string][]types.Location) map[string][]types.Location {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]types.Location, len(m))
	for k, v := range m {
		out[k] = append([]types.Location(nil), v...)
	}
	return out
}
