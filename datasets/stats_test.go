package datasets

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordStats_RoundTrip(t *testing.T) {
	coords := []Coord{
		{0.5, 450.2, 10.1},
		{-181, 419, 4.2},
		{180.5, 421.7, 6.0},
		{1.0, -2.0, 0.5},
	}
	stats, err := NewCoordStats(Train, coords)
	require.NoError(t, err)

	for _, c := range coords {
		got := stats.Denormalize(stats.Normalize(c))
		for a := 0; a < 3; a++ {
			assert.InDelta(t, c[a], got[a], 1e-9, "axis %d of %v", a, c)
		}
	}
}

func TestCoordStats_Deterministic(t *testing.T) {
	coords := []Coord{{1, 2, 3}, {4, 5, 6}, {7, 8, 10}}
	a, err := NewCoordStats(Train, coords)
	require.NoError(t, err)
	b, err := NewCoordStats(Train, coords)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Mean and standard deviation are order-invariant aggregates.
	reversed := []Coord{{7, 8, 10}, {4, 5, 6}, {1, 2, 3}}
	c, err := NewCoordStats(Train, reversed)
	require.NoError(t, err)
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, a.Mean[axis], c.Mean[axis], 1e-12)
		assert.InDelta(t, a.Std[axis], c.Std[axis], 1e-12)
	}
}

func TestCoordStats_KnownValues(t *testing.T) {
	// Two samples: mean is the midpoint, sample std is |diff|/sqrt(2).
	stats, err := NewCoordStats(Train, []Coord{{0, 10, -2}, {4, 20, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, stats.Mean[0], 1e-12)
	assert.InDelta(t, 15.0, stats.Mean[1], 1e-12)
	assert.InDelta(t, 0.0, stats.Mean[2], 1e-12)
	assert.InDelta(t, 4.0/math.Sqrt2, stats.Std[0], 1e-12)
}

func TestCoordStats_InsufficientData(t *testing.T) {
	for name, coords := range map[string][]Coord{
		"empty":    {},
		"single":   {{1, 2, 3}},
		"zero std": {{1, 2, 3}, {1, 5, 6}, {1, 8, 9}}, // x axis has no spread
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewCoordStats(Train, coords)
			require.Error(t, err)
			var insufficient *InsufficientDataError
			require.True(t, errors.As(err, &insufficient), "got %T: %v", err, err)
			assert.Equal(t, Train, insufficient.Mode)
		})
	}
}

func TestCoordStats_PartitionsDiffer(t *testing.T) {
	trainStats, err := NewCoordStats(Train, []Coord{{0, 0, 0}, {10, 10, 10}, {20, 20, 20}})
	require.NoError(t, err)
	testStats, err := NewCoordStats(Test, []Coord{{100, 100, 100}, {140, 140, 140}})
	require.NoError(t, err)

	// Distinct coordinate distributions must produce distinct statistics;
	// evaluation code therefore cannot substitute one for the other without
	// corrupting the millimeter metric.
	assert.NotEqual(t, trainStats.Mean, testStats.Mean)
	assert.NotEqual(t, trainStats.Std, testStats.Std)
}

func TestCoord_Distance(t *testing.T) {
	a := Coord{0, 450, 10}
	b := Coord{5, 448, 9}
	assert.InDelta(t, math.Sqrt(25+4+1), a.Distance(b), 1e-12)
	assert.InDelta(t, a.Distance(b), b.Distance(a), 1e-12)
	assert.Zero(t, a.Distance(a))
}
