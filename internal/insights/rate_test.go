package insights

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	r := Ratio(1, 4)
	assert.True(t, r.IsDefined())
	assert.Equal(t, 0.25, r.Value())
	assert.Equal(t, 25.0, r.Percent())
	assert.Equal(t, "25.00%", r.String())

	zero := Ratio(5, 0)
	assert.Equal(t, RateUndefined, zero.State())
	assert.Equal(t, 0.0, zero.Value())
	assert.Equal(t, "N/A", zero.String())
}

func TestDefinedRate_NeverHoldsNaN(t *testing.T) {
	assert.False(t, DefinedRate(math.NaN()).IsDefined())
	assert.False(t, DefinedRate(math.Inf(1)).IsDefined())
}

func TestRate_Complement(t *testing.T) {
	assert.InDelta(t, 0.75, Ratio(1, 4).Complement().Value(), 1e-9)
	assert.Equal(t, RateUndefined, UndefinedRate().Complement().State())
	assert.Equal(t, RateUnbounded, UnboundedRate().Complement().State())
}

func TestRate_JSON(t *testing.T) {
	tests := []struct {
		name string
		rate Rate
		want string
	}{
		{name: "defined", rate: DefinedRate(0.5), want: `0.5`},
		{name: "zero", rate: DefinedRate(0), want: `0`},
		{name: "undefined", rate: UndefinedRate(), want: `null`},
		{name: "unbounded", rate: UnboundedRate(), want: `"unbounded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.rate)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back Rate
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.rate, back)
		})
	}
}

func TestRate_UnmarshalRejectsGarbage(t *testing.T) {
	var r Rate
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &r))
}
