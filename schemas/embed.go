// Package schemas holds the JSON Schema documents for the rule database and scan results.
package schemas

import "embed"

// Schema file names
const (
	PicoMetaDB = "pico_meta_db.schema.json"
	ScanResult = "scan_result.schema.json"
)

// FS exposes the schema documents to validators without depending on the working directory.
//
//go:embed *.schema.json
var FS embed.FS
