package models

import "fmt"

// Provenance identifies the upstream system that produced a count.
type Provenance string

const (
	ProvenanceSessionAnalytics Provenance = "session_analytics"
	ProvenanceEventTracker     Provenance = "event_tracker"
	ProvenanceCommerceBackend  Provenance = "commerce_backend"
)

// Valid reports whether p is a known provenance.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceSessionAnalytics, ProvenanceEventTracker, ProvenanceCommerceBackend:
		return true
	}
	return false
}

// ParseProvenance converts a configuration value into a Provenance.
func ParseProvenance(s string) (Provenance, error) {
	p := Provenance(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provenance %q", s)
	}
	return p, nil
}

// FunnelStepSource is one pre-aggregated stage count as reported by a single
// upstream system. Stage is in that system's own vocabulary.
type FunnelStepSource struct {
	Stage  string     `json:"stage"`
	Count  int64      `json:"count"`
	Source Provenance `json:"source"`
}

// ProductCountKind selects which per-product interaction is counted.
type ProductCountKind string

const (
	ProductViews    ProductCountKind = "views"
	ProductClicks   ProductCountKind = "clicks"
	ProductCartAdds ProductCountKind = "cart_adds"
)

// Valid reports whether k is a known kind.
func (k ProductCountKind) Valid() bool {
	switch k {
	case ProductViews, ProductClicks, ProductCartAdds:
		return true
	}
	return false
}
