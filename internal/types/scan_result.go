package types

// SDK usage status values reported in SDKMetadata.Status
const (
	StatusUsed    = "used"
	StatusNotUsed = "not used"
)

// PVPFinding is a single triggered policy violation point
type PVPFinding struct {
	PVPID           string   `json:"pvpId"`
	SDKID           string   `json:"sdkId"`
	Law             string   `json:"law"`
	Severity        Severity `json:"severity"`
	TriggeringRule  string   `json:"triggeringRule"`
	EvidenceSummary string   `json:"evidenceSummary"`
}

// SDKMetadata carries descriptive and diagnostic data for one SDK result
type SDKMetadata struct {
	DisplayName string                `json:"displayName"`
	Description string                `json:"description,omitempty"`
	Status      string                `json:"status"`
	Attributes  map[string]string     `json:"attributes,omitempty"`
	Manifest    map[string]string     `json:"manifest,omitempty"`
	Locations   map[string][]Location `json:"locations,omitempty"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
}

// SDKResult is the per-SDK entry of a scan result. The JSON keys are consumed
// field-for-field by report rendering and must not change.
type SDKResult struct {
	SDK           string       `json:"sdk"`
	Laws          []string     `json:"laws"`
	Metadata      SDKMetadata  `json:"metadata"`
	FoundAPIs     []string     `json:"foundAPIs"`
	MissingAPIs   []string     `json:"missingAPIs"`
	PVPsTriggered []PVPFinding `json:"pvpsTriggered"`
}

// AppInfo describes the scanned application as read from its manifest
type AppInfo struct {
	Package     string   `json:"package,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ScanResult is the single artifact produced by one scan
type ScanResult struct {
	ScanID      string      `json:"scanId"`
	Root        string      `json:"root"`
	App         *AppInfo    `json:"app,omitempty"`
	SDKResults  []SDKResult `json:"sdkResults"`
	Diagnostics []string    `json:"diagnostics,omitempty"`
}

// Findings returns every triggered PVP across all SDKs in result order.
func (r *ScanResult) Findings() []PVPFinding {
	var out []PVPFinding
	for _, sr := range r.SDKResults {
		out = append(out, sr.PVPsTriggered...)
	}
	return out
}

// UsedSDKs returns the ids of SDKs with at least one found API.
func (r *ScanResult) UsedSDKs() []string {
	var out []string
	for _, sr := range r.SDKResults {
		if sr.Metadata.Status == StatusUsed {
			out = append(out, sr.SDK)
		}
	}
	return out
}

// Result looks up the entry for an SDK id.
func (r *ScanResult) Result(sdkID string) (SDKResult, bool) {
	for _, sr := range r.SDKResults {
		if sr.SDK == sdkID {
			return sr, true
		}
	}
	return SDKResult{}, false
}
