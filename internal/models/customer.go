package models

import (
	"errors"
	"strings"
)

// MetadataGroupKey is the metadata field that may carry a customer group.
const MetadataGroupKey = "customer_group"

// GroupRefKind tells whether a GroupRef holds a group id or a display name.
type GroupRefKind int

const (
	GroupRefNone GroupRefKind = iota
	GroupRefID
	GroupRefName
)

// GroupRef is a customer group reference. The kind is decided once, when the
// record is decoded, and never inferred from a lookup afterwards.
type GroupRef struct {
	Kind  GroupRefKind
	Value string
}

// GroupID returns a reference to a group by id.
func GroupID(id string) GroupRef { return GroupRef{Kind: GroupRefID, Value: id} }

// GroupName returns a reference holding an already resolved name.
func GroupName(name string) GroupRef { return GroupRef{Kind: GroupRefName, Value: name} }

// IsZero reports whether the reference is absent.
func (g GroupRef) IsZero() bool {
	return g.Kind == GroupRefNone || g.Value == ""
}

// ===========================================
// CUSTOMER
// ===========================================

// Customer is a shopper account in the commerce backend.
type Customer struct {
	ID        string          `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Metadata  map[string]any  `json:"metadata"`
	Groups    []CustomerGroup `json:"groups,omitempty"`

	// Group is set by DecodeGroup.
	Group GroupRef `json:"-"`
}

// Name returns the display name of the customer.
func (c *Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// DecodeGroup tags the customer's group reference. Embedded groups win over
// metadata. A metadata value starting with idPrefix is a group id; any other
// non-empty string is a name.
func (c *Customer) DecodeGroup(idPrefix string) {
	c.Group = GroupRef{}
	for _, g := range c.Groups {
		if g.Name != "" {
			c.Group = GroupName(g.Name)
			return
		}
		if g.ID != "" {
			c.Group = GroupID(g.ID)
			return
		}
	}

	raw, ok := c.Metadata[MetadataGroupKey].(string)
	if !ok {
		return
	}
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
	case idPrefix != "" && strings.HasPrefix(raw, idPrefix):
		c.Group = GroupID(raw)
	default:
		c.Group = GroupName(raw)
	}
}

// Normalize fills defaults for optional fields.
func (c *Customer) Normalize() {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
}

// Validate checks that required fields are present.
func (c *Customer) Validate() error {
	if c == nil {
		return errors.New("customer is nil")
	}
	if c.ID == "" {
		return errors.New("customer id is required")
	}
	return nil
}

// CustomerGroup is a named customer segment.
type CustomerGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GroupLookup maps group ids to display names.
type GroupLookup map[string]string

// NewGroupLookup builds a lookup table, skipping groups without a name.
func NewGroupLookup(groups []CustomerGroup) GroupLookup {
	lookup := make(GroupLookup, len(groups))
	for _, g := range groups {
		if g.ID == "" || g.Name == "" {
			continue
		}
		lookup[g.ID] = g.Name
	}
	return lookup
}
