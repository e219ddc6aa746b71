// Package manifest reads the decoded AndroidManifest.xml of a scanned application.
package manifest

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/types"
)

// ParseError represents a manifest that could not be interpreted
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("manifest error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("manifest error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Manifest holds the parts of an application manifest relevant to SDK configuration
type Manifest struct {
	Package     string
	Permissions []string          // in document order, without duplicates
	MetaData    map[string]string // <meta-data android:name android:value> pairs
}

// Parse reads a decoded (text) AndroidManifest.xml.
func Parse(r io.Reader) (*Manifest, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ParseError{Message: "failed to parse manifest", Cause: err}
	}

	root := doc.Find("manifest").First()
	if root.Length() == 0 {
		return nil, &ParseError{Message: "no <manifest> element, the file may still be binary XML"}
	}

	m := &Manifest{MetaData: make(map[string]string)}
	m.Package = strings.TrimSpace(root.AttrOr("package", ""))

	seen := make(map[string]bool)
	root.Find("uses-permission, uses-permission-sdk-23").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("android:name", ""))
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		m.Permissions = append(m.Permissions, name)
	})

	root.Find("meta-data").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("android:name", ""))
		if name == "" {
			return
		}
		value, ok := s.Attr("android:value")
		if !ok {
			value = s.AttrOr("android:resource", "")
		}
		m.MetaData[name] = value
	})

	return m, nil
}

// FromCorpus parses the manifest at the corpus root. It returns nil without an
// error when the corpus has no manifest.
func FromCorpus(c *corpus.Corpus) (*Manifest, error) {
	e, ok := c.Entry(corpus.ManifestName)
	if !ok {
		return nil, nil
	}
	return Parse(strings.NewReader(e.Text))
}

// AppInfo returns the application description carried in scan results.
func (m *Manifest) AppInfo() *types.AppInfo {
	if m == nil {
		return nil
	}
	return &types.AppInfo{
		Package:     m.Package,
		Permissions: append([]string(nil), m.Permissions...),
	}
}

// HasPermission reports whether the application requests the named permission.
func (m *Manifest) HasPermission(name string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Values returns the meta-data pairs, or nil for a nil manifest.
func (m *Manifest) Values() map[string]string {
	if m == nil {
		return nil
	}
	return m.MetaData
}
