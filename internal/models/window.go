package models

import (
	"errors"
	"time"
)

// Window bounds a query by creation time. Zero bounds are open.
type Window struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	// PageURL narrows event-count queries to one storefront page.
	PageURL string `json:"page_url,omitempty"`
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return errors.New("window end is before window start")
	}
	return nil
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// IsOpen reports whether neither bound is set.
func (w Window) IsOpen() bool {
	return w.From.IsZero() && w.To.IsZero()
}
