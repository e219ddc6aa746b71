package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/picoscan/internal/types"
)

// Scan status values
const (
	StatusClean      = "clean"
	StatusViolations = "violations"
)

// ScanSummary is a scan history row without the stored result document
type ScanSummary struct {
	ID           uuid.UUID `json:"id"`
	Root         string    `json:"root"`
	RulesSource  string    `json:"rules_source"`
	AppPackage   string    `json:"app_package,omitempty"`
	Status       string    `json:"status"`
	SDKCount     int       `json:"sdk_count"`
	UsedSDKCount int       `json:"used_sdk_count"`
	FindingCount int       `json:"finding_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScanFilters holds optional filters for listing scans
type ScanFilters struct {
	AppPackage string
	Status     string
	Limit      int
}

// StoredFinding is a finding row joined with its scan
type StoredFinding struct {
	ScanID uuid.UUID `json:"scan_id"`
	types.PVPFinding
}

func summarize(result *types.ScanResult) (status string, used, findings int) {
	used = len(result.UsedSDKs())
	findings = len(result.Findings())
	status = StatusClean
	if findings > 0 {
		status = StatusViolations
	}
	return status, used, findings
}

func appPackage(result *types.ScanResult) string {
	if result.App == nil {
		return ""
	}
	return result.App.Package
}
