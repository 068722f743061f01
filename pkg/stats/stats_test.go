package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name     string
		kind     Kind
		quantile float64
	}{
		{"mean", Mean, 0},
		{"MEDIAN", Median, 0.5},
		{"p10", Percentile, 0.9},
		{"p90", Percentile, 0.1},
		{"p00", Percentile, 1},
		{"p99", Percentile, 0.01},
		{" std ", Std, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Parse(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, s.Kind)
			assert.InDelta(t, tc.quantile, s.Quantile, 1e-12)
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, name := range []string{"", "p1", "p100", "average", "q10", "p-1"} {
		_, err := Parse(name)
		assert.ErrorIs(t, err, ErrInvalidStatistic, name)
	}
}

func TestPercentileInversion(t *testing.T) {
	values := []float64{10, 20, 30}

	assert.InDelta(t, 20, MustParse("mean").Compute(values), 1e-12)
	// p10 is the 90th statistical percentile: 20 + 0.8*(30-20)
	assert.InDelta(t, 28, MustParse("p10").Compute(values), 1e-12)
	assert.InDelta(t, 12, MustParse("p90").Compute(values), 1e-12)
	assert.InDelta(t, 20, MustParse("p50").Compute(values), 1e-12)
	assert.InDelta(t, 20, MustParse("median").Compute(values), 1e-12)
	assert.Greater(t, MustParse("p10").Compute(values), MustParse("p90").Compute(values))
}

func TestComputeIgnoresMissing(t *testing.T) {
	values := []float64{1, math.NaN(), 3}

	assert.InDelta(t, 2, MustParse("mean").Compute(values), 1e-12)
	assert.InDelta(t, 1, MustParse("min").Compute(values), 1e-12)
	assert.InDelta(t, 3, MustParse("max").Compute(values), 1e-12)
	assert.InDelta(t, 2, MustParse("var").Compute(values), 1e-12)
	assert.InDelta(t, math.Sqrt2, MustParse("std").Compute(values), 1e-12)
	assert.True(t, math.IsNaN(MustParse("mean").Compute([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(MustParse("std").Compute([]float64{4})))
}

func TestQuantileEdges(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, Quantile(0, sorted), 1e-12)
	assert.InDelta(t, 4, Quantile(1, sorted), 1e-12)
	assert.InDelta(t, 2.5, Quantile(0.5, sorted), 1e-12)
	assert.True(t, math.IsNaN(Quantile(0.5, nil)))
}
