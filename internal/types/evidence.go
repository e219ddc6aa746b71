package types

// Location is one occurrence of a signature in the corpus
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`   // 1-based
	Offset int    `json:"offset"` // byte offset within the file text
}

// MatchEvidence is the matcher's per-SDK output.
// FoundAPIs and MissingAPIs hold pattern names in declaration order.
type MatchEvidence struct {
	SDKID       string                `json:"sdkId"`
	FoundAPIs   []string              `json:"foundAPIs"`
	MissingAPIs []string              `json:"missingAPIs"`
	Locations   map[string][]Location `json:"locations"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
}

// Used reports whether any pattern of the SDK was found.
func (e *MatchEvidence) Used() bool {
	return len(e.FoundAPIs) > 0
}

// IsFound reports whether the named pattern was found.
func (e *MatchEvidence) IsFound(name string) bool {
	return contains(e.FoundAPIs, name)
}

// IsMissing reports whether the named required pattern was missing.
func (e *MatchEvidence) IsMissing(name string) bool {
	return contains(e.MissingAPIs, name)
}

// FirstLocation returns the earliest recorded occurrence of the named pattern.
func (e *MatchEvidence) FirstLocation(name string) (Location, bool) {
	locs := e.Locations[name]
	if len(locs) == 0 {
		return Location{}, false
	}
	return locs[0], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
