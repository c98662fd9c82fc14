package evaluate

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoroml/landmarknet/datasets"
)

func identityStats() *datasets.CoordStats {
	return &datasets.CoordStats{
		Mean: datasets.Coord{0, 0, 0},
		Std:  datasets.Coord{1, 1, 1},
	}
}

func TestAccuracy(t *testing.T) {
	// Three of four identifications match.
	got := Accuracy([]int{0, 1, 1, 3}, []int{0, 1, 2, 3})
	assert.Equal(t, 0.75, got)

	assert.Equal(t, 1.0, Accuracy([]int{2, 2}, []int{2, 2}))
	assert.Equal(t, 0.0, Accuracy([]int{1}, []int{0}))
	assert.Equal(t, 0.0, Accuracy(nil, nil))

	assert.Panics(t, func() {
		Accuracy([]int{0, 1}, []int{0})
	})
}

func TestSpatialErrorMM(t *testing.T) {
	// With identity statistics the normalized prediction already is the
	// millimeter prediction: offsets (5, -2, -1) from T1 give sqrt(30) mm.
	err := SpatialErrorMM(identityStats(), [3]float32{5, 448, 9}, datasets.Coord{0, 450, 10})
	assert.InDelta(t, math.Sqrt(30), err, 1e-6)
	assert.InDelta(t, 5.48, err, 0.01)

	// A prediction of zero in normalized space denormalizes to the mean.
	stats := &datasets.CoordStats{
		Mean: datasets.Coord{1, 2, 3},
		Std:  datasets.Coord{2, 2, 2},
	}
	assert.InDelta(t, 0, SpatialErrorMM(stats, [3]float32{0, 0, 0}, datasets.Coord{1, 2, 3}), 1e-6)

	// Denormalization must scale by the standard deviation before measuring.
	assert.InDelta(t, 2, SpatialErrorMM(stats, [3]float32{1, 0, 0}, datasets.Coord{1, 2, 3}), 1e-6)
}

func TestReportMetrics(t *testing.T) {
	r := &Report{
		Results: []Result{
			{CaseID: "case-1", TrueClass: 0, PredClass: 0, ErrorMM: 2.0},
			{CaseID: "case-2", TrueClass: 1, PredClass: 1, ErrorMM: 4.0},
			{CaseID: "case-3", TrueClass: 2, PredClass: 1, ErrorMM: 6.0},
			{CaseID: "case-4", TrueClass: 3, PredClass: 3, ErrorMM: 8.0},
		},
	}

	assert.Equal(t, 0.75, r.Accuracy())
	assert.InDelta(t, 5.0, r.MeanErrorMM(), 1e-9)
	assert.InDelta(t, 2.0, r.MinErrorMM(), 1e-9)
	assert.Equal(t, []float64{2, 4, 6, 8}, r.SpatialErrors())

	out := r.String()
	assert.True(t, strings.Contains(out, "Anatomical ID Accuracy: 75.0%"), out)
	assert.True(t, strings.Contains(out, "Mean Spatial Error: 5.00 mm"), out)
	assert.True(t, strings.Contains(out, "Best Case Precision: 2.00 mm"), out)
}

func TestReportEmpty(t *testing.T) {
	r := &Report{}
	assert.Equal(t, 0.0, r.Accuracy())
	assert.Equal(t, 0.0, r.MeanErrorMM())
	assert.Equal(t, 0.0, r.MinErrorMM())
}

func TestRunWithoutTrainedModel(t *testing.T) {
	cfg := Config{
		Annotations:   filepath.Join(t.TempDir(), "annotations.csv"),
		CheckpointDir: filepath.Join(t.TempDir(), "never-trained"),
	}

	_, err := Run(cfg)
	require.Error(t, err)

	var notFound *ModelNotFoundError
	require.True(t, errors.As(err, &notFound), "expected *ModelNotFoundError, got %T: %v", err, err)
	assert.Equal(t, cfg.CheckpointDir, notFound.Dir)
	assert.Contains(t, notFound.Error(), "no trained model")
}

func TestRunWithEmptyCheckpointDir(t *testing.T) {
	// An aborted training run leaves the directory behind without saving a
	// checkpoint; that must still count as "no trained model".
	dir := filepath.Join(t.TempDir(), "aborted")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	cfg := Config{
		Annotations:   filepath.Join(t.TempDir(), "annotations.csv"),
		CheckpointDir: dir,
	}

	_, err := Run(cfg)
	require.Error(t, err)

	var notFound *ModelNotFoundError
	require.True(t, errors.As(err, &notFound), "expected *ModelNotFoundError, got %T: %v", err, err)
	assert.Equal(t, dir, notFound.Dir)
}
