package insights

import (
	"encoding/json"
	"fmt"
	"math"
)

// RateState tells whether a Rate carries a value.
type RateState int

const (
	// RateUndefined means the denominator was zero and no value exists.
	RateUndefined RateState = iota
	// RateDefined means Value is meaningful.
	RateDefined
	// RateUnbounded means a positive numerator over a zero denominator.
	RateUnbounded
)

// Rate is a ratio that never holds NaN or Inf. Empty denominators are
// represented by a state instead of a number.
type Rate struct {
	state RateState
	value float64
}

// DefinedRate returns a rate holding v.
func DefinedRate(v float64) Rate {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Rate{}
	}
	return Rate{state: RateDefined, value: v}
}

// UndefinedRate returns the "no data" rate.
func UndefinedRate() Rate { return Rate{} }

// UnboundedRate returns the rate of a positive count over zero.
func UnboundedRate() Rate { return Rate{state: RateUnbounded} }

// Ratio returns num/den, undefined when den is zero.
func Ratio(num, den float64) Rate {
	if den == 0 {
		return UndefinedRate()
	}
	return DefinedRate(num / den)
}

func (r Rate) State() RateState {
	return r.state
}

func (r Rate) IsDefined() bool {
	return r.state == RateDefined
}

func (r Rate) IsUnbounded() bool {
	return r.state == RateUnbounded
}

// Value returns the ratio, or 0 when the rate is not defined.
func (r Rate) Value() float64 {
	if r.state != RateDefined {
		return 0
	}
	return r.value
}

// Percent returns the ratio scaled to 0..100, or 0 when not defined.
func (r Rate) Percent() float64 {
	return r.Value() * 100
}

// Complement returns 1 - r, preserving the undefined states.
func (r Rate) Complement() Rate {
	if r.state != RateDefined {
		return r
	}
	return DefinedRate(1 - r.value)
}

func (r Rate) String() string {
	switch r.state {
	case RateDefined:
		return fmt.Sprintf("%.2f%%", r.Percent())
	case RateUnbounded:
		return "unbounded"
	default:
		return "N/A"
	}
}

// MarshalJSON renders a defined rate as a number, an undefined rate as null
// and an unbounded rate as the string "unbounded".
func (r Rate) MarshalJSON() ([]byte, error) {
	switch r.state {
	case RateDefined:
		return json.Marshal(r.value)
	case RateUnbounded:
		return []byte(`"unbounded"`), nil
	default:
		return []byte("null"), nil
	}
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*r = UndefinedRate()
		return nil
	case `"unbounded"`:
		*r = UnboundedRate()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode rate: %w", err)
	}
	*r = DefinedRate(v)
	return nil
}

// percentOf returns part/whole*100, 0 when whole is zero.
func percentOf(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
