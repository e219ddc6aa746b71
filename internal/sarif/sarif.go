// Package sarif exports scan findings as a SARIF 2.1.0 report.
package sarif

import (
	"fmt"
	"os"

	gosarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/jonathan/picoscan/internal/types"
)

// ToolName and ToolURI identify picoscan as the SARIF producer.
const (
	ToolName = "picoscan"
	ToolURI  = "https://github.com/jonathan/picoscan"
)

// FromScanResult builds a report with one rule per PVP id and one result per
// finding. A rule's default level is that of its most severe finding. Results
// point at the first location of the first found API of the finding's SDK.
func FromScanResult(result types.ScanResult) (*gosarif.Report, error) {
	report, err := gosarif.New(gosarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := gosarif.NewRunWithInformationURI(ToolName, ToolURI)
	ruleSeverity := make(map[string]types.Severity)
	for _, sr := range result.SDKResults {
		location := firstLocation(sr)
		for _, f := range sr.PVPsTriggered {
			level := toSarifLevel(f.Severity)

			// AddRule returns the existing descriptor for a known id
			rule := run.AddRule(f.PVPID)
			prev, seen := ruleSeverity[f.PVPID]
			if !seen {
				rule.WithDescription(fmt.Sprintf("Policy violation point %s", f.PVPID))
			}
			if !seen || f.Severity.Rank() > prev.Rank() {
				rule.WithDefaultConfiguration(&gosarif.ReportingConfiguration{Level: level})
				ruleSeverity[f.PVPID] = f.Severity
			}

			res := gosarif.NewRuleResult(rule.ID).
				WithMessage(gosarif.NewTextMessage(message(sr, f))).
				WithLevel(level)
			if location != nil {
				res = res.WithLocations([]*gosarif.Location{
					gosarif.NewLocation().WithPhysicalLocation(
						gosarif.NewPhysicalLocation().
							WithArtifactLocation(gosarif.NewArtifactLocation().WithUri(location.Path)).
							WithRegion(gosarif.NewRegion().WithStartLine(location.Line)),
					),
				})
			}
			run.AddResult(res)
		}
	}
	report.AddRun(run)
	return report, nil
}

// WriteFile writes the SARIF form of result to path.
func WriteFile(result types.ScanResult, path string) error {
	report, err := FromScanResult(result)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create SARIF file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := report.PrettyWrite(file); err != nil {
		return fmt.Errorf("failed to write SARIF report: %w", err)
	}
	return nil
}

func message(sr types.SDKResult, f types.PVPFinding) string {
	return fmt.Sprintf("%s (%s): %s [rule %s]", sr.Metadata.DisplayName, f.Law, f.EvidenceSummary, f.TriggeringRule)
}

func firstLocation(sr types.SDKResult) *types.Location {
	for _, api := range sr.FoundAPIs {
		if locs := sr.Metadata.Locations[api]; len(locs) > 0 {
			loc := locs[0]
			return &loc
		}
	}
	return nil
}

func toSarifLevel(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical:
		return "error"
	case types.SeverityWarning:
		return "warning"
	case types.SeverityInfo:
		return "note"
	default:
		return "none"
	}
}
