// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/picoscan/internal/aggregate"
	"github.com/jonathan/picoscan/internal/db"
	"github.com/jonathan/picoscan/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintApp outputs the application identity read from the manifest.
func (p *Printer) PrintApp(app *types.AppInfo) {
	if app == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Package:      %s\n", app.Package))
	sb.WriteString(fmt.Sprintf("Permissions:  %d\n", len(app.Permissions)))

	count := min(len(app.Permissions), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", app.Permissions[i]))
	}
	if len(app.Permissions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(app.Permissions)-maxItemsToShow))
	}

	p.printBox("APPLICATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSDKResults outputs the SDKs detected in the corpus with their found
// and missing APIs. Unused SDKs are counted but not listed.
func (p *Printer) PrintSDKResults(results []types.SDKResult) {
	if len(results) == 0 {
		return
	}

	var used []types.SDKResult
	for _, r := range results {
		if r.Metadata.Status == types.StatusUsed {
			used = append(used, r)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d of %d SDKs detected\n", len(used), len(results)))

	for i, r := range used {
		sb.WriteString("\n")
		name := r.Metadata.DisplayName
		if name == "" {
			name = r.SDK
		}
		sb.WriteString(fmt.Sprintf("%s [%s]\n", name, strings.Join(r.Laws, ", ")))
		sb.WriteString(fmt.Sprintf("  found:   %s\n", listOrDash(r.FoundAPIs)))
		sb.WriteString(fmt.Sprintf("  missing: %s", listOrDash(r.MissingAPIs)))
		if i < len(used)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("DETECTED SDKS", sb.String())
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// PrintFindings outputs the triggered PVPs of a scan.
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) PrintFindings(findings []types.PVPFinding) {
	if len(findings) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO PRIVACY VIOLATIONS FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d violations:\n\n", len(findings)))

	for i, f := range findings {
		sb.WriteString(fmt.Sprintf("⚠ %s  %s/%s (%s)\n", f.PVPID, f.SDKID, f.Law, f.Severity))
		sb.WriteString(fmt.Sprintf("  %s", f.EvidenceSummary))
		if i < len(findings)-1 {
			sb.WriteString("\n\n")
		}
	}

	p.printBox("PRIVACY VIOLATIONS", sb.String())
}

// PrintSummary outputs the scan counters.
func (p *Printer) PrintSummary(result *types.ScanResult) {
	if result == nil {
		return
	}

	s := aggregate.Summarize(*result)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Scan:      %s\n", result.ScanID))
	sb.WriteString(fmt.Sprintf("SDKs:      %d checked, %d used\n", s.SDKs, s.UsedSDKs))
	sb.WriteString(fmt.Sprintf("Findings:  %d", s.Findings))
	if s.Findings > 0 {
		sb.WriteString(fmt.Sprintf(" (critical %d, warning %d, info %d)",
			s.BySeverity[types.SeverityCritical], s.BySeverity[types.SeverityWarning], s.BySeverity[types.SeverityInfo]))
	}
	sb.WriteString("\n")
	for _, law := range s.Laws() {
		sb.WriteString(fmt.Sprintf("  %-8s %d\n", law, s.ByLaw[law]))
	}
	if len(result.Diagnostics) > 0 {
		sb.WriteString(fmt.Sprintf("Diagnostics: %d\n", len(result.Diagnostics)))
	}

	p.printBox("SCAN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintHistory outputs stored scans as a compact table.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintHistory(scans []db.ScanSummary) {
	if len(scans) == 0 {
		fmt.Fprintln(p.out, "No scans recorded.")
		return
	}

	var sb strings.Builder
	for i, s := range scans {
		app := s.AppPackage
		if app == "" {
			app = "-"
		}
		sb.WriteString(fmt.Sprintf("%s  %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04")))
		sb.WriteString(fmt.Sprintf("  %s  %s  %d/%d SDKs  %d findings", app, s.Status, s.UsedSDKCount, s.SDKCount, s.FindingCount))
		if i < len(scans)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox(fmt.Sprintf("SCAN HISTORY (%d)", len(scans)), sb.String())
}
