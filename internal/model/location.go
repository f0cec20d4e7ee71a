// Package model defines the record types flowing through the sheetmap pipeline.
package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// DefaultLinkText is used when a row carries a link URL but no link text.
const DefaultLinkText = "Learn more"

// LocationEntry is a fully resolved marker record. Once constructed it is
// treated as immutable: the parser and resolver hand values to the renderer,
// never pointers into mutable state.
type LocationEntry struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Description string  `json:"description,omitempty"`
	LinkURL     string  `json:"link_url,omitempty"`
	LinkText    string  `json:"link_text,omitempty"`
}

// PendingRow is a parsed row still requiring address-to-coordinate
// resolution. The resolver replaces it with a LocationEntry or drops it.
type PendingRow struct {
	Name        string
	Address     string
	Description string
	LinkURL     string
	LinkText    string
}

// NewLocationEntry builds a LocationEntry, enforcing the invariants every
// entry must satisfy before reaching the renderer: non-empty name and finite
// coordinates. LinkText falls back to DefaultLinkText when a link URL is
// present without accompanying text.
func NewLocationEntry(name string, lat, lng float64, description, linkURL, linkText string) (LocationEntry, error) {
	if name == "" {
		return LocationEntry{}, eris.New("model: location entry requires a name")
	}
	if !IsFinite(lat) || !IsFinite(lng) {
		return LocationEntry{}, eris.Errorf("model: non-finite coordinates for %q", name)
	}
	if linkURL != "" && linkText == "" {
		linkText = DefaultLinkText
	}
	return LocationEntry{
		Name:        name,
		Lat:         lat,
		Lng:         lng,
		Description: description,
		LinkURL:     linkURL,
		LinkText:    linkText,
	}, nil
}

// Entry converts a resolved pending row into a LocationEntry.
func (p PendingRow) Entry(lat, lng float64) (LocationEntry, error) {
	return NewLocationEntry(p.Name, lat, lng, p.Description, p.LinkURL, p.LinkText)
}

// IsFinite reports whether f is a usable coordinate value.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
