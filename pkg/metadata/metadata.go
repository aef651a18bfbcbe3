// Package metadata models the flat, multi-valued field map attached to an
// archived item.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Common field names.
const (
	Title       = "title"
	Description = "description"
	Creator     = "creator"
	Date        = "date"
	Language    = "language"
	Subject     = "subject"
	MediaType   = "mediatype"
	LicenseURL  = "licenseurl"
	Source      = "source"
	Collection  = "collection"
)

// PublicDomain is the license URL used for government records.
const PublicDomain = "https://creativecommons.org/publicdomain/mark/1.0/"

// Metadata maps a field name to one or more values.
type Metadata map[string][]string

// New returns metadata prefilled with fields every text item carries.
func New() Metadata {
	m := Metadata{}
	m.Set(MediaType, "texts")
	m.Set(LicenseURL, PublicDomain)
	return m
}

// Set replaces a field. Empty values are dropped; a field left with no
// values is removed.
func (m Metadata) Set(field string, values ...string) {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(m, field)
		return
	}
	m[field] = kept
}

// Add appends values to a field, skipping ones already present.
func (m Metadata) Add(field string, values ...string) {
	existing := m[field]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !slices.Contains(existing, v) {
			existing = append(existing, v)
		}
	}
	if len(existing) > 0 {
		m[field] = existing
	}
}

// Get returns the first value of a field.
func (m Metadata) Get(field string) string {
	if v := m[field]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Fields lists field names in sorted order.
func (m Metadata) Fields() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

var nonField = regexp.MustCompile(`[^a-z0-9_]+`)

// FieldName normalises a free-form label ("Debate Title", "Minsitry ") into
// a field name ("debate_title").
func FieldName(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '.' {
			return '_'
		}
		return r
	}, label)
	label = nonField.ReplaceAllString(label, "")
	return strings.Trim(label, "_")
}

// AddPrefixed copies source-specific fields under prefix_name.
func (m Metadata) AddPrefixed(prefix string, fields map[string]string) {
	for label, value := range fields {
		name := FieldName(label)
		if name == "" {
			continue
		}
		m.Set(prefix+"_"+name, value)
	}
}

// Validate checks the fields an upload cannot go without.
func (m Metadata) Validate() error {
	var errs []error
	for _, field := range []string{Title, MediaType, Creator} {
		if m.Get(field) == "" {
			errs = append(errs, fmt.Errorf("missing %s", field))
		}
	}
	for name := range m {
		if name != FieldName(name) {
			errs = append(errs, fmt.Errorf("invalid field name %q", name))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Save writes the metadata as a JSON sidecar at path.
func (m Metadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a sidecar written by Save.
func Load(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
