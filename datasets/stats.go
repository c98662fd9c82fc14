package datasets

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Coord is a 3D position (x, y, z) in millimeters relative to the center of
// the fluoroscopy bed.
type Coord [3]float64

// Distance returns the Euclidean distance in millimeters between c and o.
func (c Coord) Distance(o Coord) float64 {
	dx := c[0] - o[0]
	dy := c[1] - o[1]
	dz := c[2] - o[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// CoordStats holds per-axis mean and sample standard deviation computed once
// from a single partition's ground-truth coordinates. Normalize and
// Denormalize are exact affine inverses of each other; the instance computed
// from the training partition must be the one used to denormalize predictions
// at evaluation time, so it is threaded explicitly through the pipeline
// rather than recomputed.
type CoordStats struct {
	Mean Coord
	Std  Coord
}

// NewCoordStats computes per-axis mean and sample standard deviation over the
// given coordinates. It returns an *InsufficientDataError when fewer than two
// coordinates are provided or when any axis has zero spread, since either
// would put a division by zero (and silent NaNs) into the pipeline.
func NewCoordStats(mode Partition, coords []Coord) (*CoordStats, error) {
	if len(coords) < 2 {
		return nil, &InsufficientDataError{
			Mode:   mode,
			Count:  len(coords),
			Reason: "at least 2 samples are required for a sample standard deviation",
		}
	}

	s := &CoordStats{}
	axis := make([]float64, len(coords))
	for a := 0; a < 3; a++ {
		for i, c := range coords {
			axis[i] = c[a]
		}
		s.Mean[a] = stat.Mean(axis, nil)
		s.Std[a] = stat.StdDev(axis, nil)
		if s.Std[a] == 0 || math.IsNaN(s.Std[a]) {
			return nil, &InsufficientDataError{
				Mode:   mode,
				Count:  len(coords),
				Reason: "zero standard deviation on axis " + axisName(a),
			}
		}
	}
	return s, nil
}

// Normalize maps a millimeter coordinate into the zero-mean/unit-variance
// representation used by the regression head.
func (s *CoordStats) Normalize(c Coord) Coord {
	var out Coord
	for a := 0; a < 3; a++ {
		out[a] = (c[a] - s.Mean[a]) / s.Std[a]
	}
	return out
}

// Denormalize is the exact inverse of Normalize, mapping a normalized value
// back to millimeters.
func (s *CoordStats) Denormalize(c Coord) Coord {
	var out Coord
	for a := 0; a < 3; a++ {
		out[a] = c[a]*s.Std[a] + s.Mean[a]
	}
	return out
}

func axisName(a int) string {
	return [...]string{"x", "y", "z"}[a]
}
