package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GeocodeCacheKeyPrefix namespaces geocode entries in shared key-value stores.
const GeocodeCacheKeyPrefix = "geocode:"

// Address holds the components sent to the geocoding provider, in key order.
type Address struct {
	Street     string
	PostalCode string
	City       string
	Country    string
}

func (a Address) parts() []string {
	var parts []string
	for _, p := range []string{a.Street, a.PostalCode, a.City, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Locatable reports whether the address has anything more precise than a country.
func (a Address) Locatable() bool {
	return strings.TrimSpace(a.Street) != "" ||
		strings.TrimSpace(a.PostalCode) != "" ||
		strings.TrimSpace(a.City) != ""
}

// Query is the free-text form sent to the provider.
func (a Address) Query() string {
	return strings.Join(a.parts(), ", ")
}

// CacheKey derives the lookup key: each non-empty component is trimmed, lowercased and
// whitespace-collapsed, joined with "|" and hashed with SHA-256. Returns "" when every
// component is empty.
func (a Address) CacheKey() string {
	parts := a.parts()
	if len(parts) == 0 {
		return ""
	}
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return GeocodeCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// GeocodeResult is a positive provider answer.
type GeocodeResult struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	DisplayName string   `json:"display_name,omitempty"`
	PlaceID     string   `json:"place_id,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Locality    string   `json:"locality,omitempty"`
	Region      string   `json:"region,omitempty"`
	Country     string   `json:"country,omitempty"`
}

// GeocodeStatus is the three-way outcome of one provider call.
type GeocodeStatus int

const (
	GeocodeFound GeocodeStatus = iota
	GeocodeNotFound
	GeocodeTransient
)

func (s GeocodeStatus) String() string {
	switch s {
	case GeocodeFound:
		return "found"
	case GeocodeNotFound:
		return "not_found"
	case GeocodeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// GeocodeOutcome carries the result for Found and the cause for Transient.
type GeocodeOutcome struct {
	Status GeocodeStatus
	Result *GeocodeResult
	Err    error
}

func Found(r *GeocodeResult) GeocodeOutcome { return GeocodeOutcome{Status: GeocodeFound, Result: r} }
func NotFound() GeocodeOutcome              { return GeocodeOutcome{Status: GeocodeNotFound} }
func Transient(err error) GeocodeOutcome    { return GeocodeOutcome{Status: GeocodeTransient, Err: err} }

// CacheEntry is a cached provider answer. NotFound entries have a nil Result.
type CacheEntry struct {
	Result   *GeocodeResult
	NotFound bool
}
