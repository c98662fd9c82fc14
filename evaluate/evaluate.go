// Package evaluate runs inference over the held-out partition and aggregates
// classification accuracy and spatial error in millimeters. Denormalization
// uses the training partition's statistics, required explicitly by the API so
// evaluation can never silently recompute them from the test partition.
package evaluate

import (
	"fmt"

	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fluoroml/landmarknet/datasets"
	"github.com/fluoroml/landmarknet/landmark"
)

// ModelNotFoundError reports that evaluation was invoked before a trained
// parameter set exists at the expected location. There is no automatic
// retraining; the caller decides what to do.
type ModelNotFoundError struct {
	Dir string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("no trained model found at %s", e.Dir)
}

// Config locates the annotation table and the persisted parameters.
type Config struct {
	Annotations   string
	CheckpointDir string
	Model         landmark.Config
}

// Result is the outcome of inference on a single held-out sample.
type Result struct {
	CaseID    string
	TrueClass int
	PredClass int
	TrueMM    datasets.Coord
	PredMM    datasets.Coord
	ErrorMM   float64
}

// Report aggregates per-sample results into the metrics the pipeline is
// judged by. It is a read-only computation; neither the model nor the data
// is mutated.
type Report struct {
	Results []Result
	Labels  *datasets.LabelMap
}

// Accuracy returns the fraction of correctly identified landmarks.
func (r *Report) Accuracy() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	correct := 0
	for _, res := range r.Results {
		if res.PredClass == res.TrueClass {
			correct++
		}
	}
	return float64(correct) / float64(len(r.Results))
}

// SpatialErrors returns the per-sample Euclidean errors in millimeters, in
// sample order.
func (r *Report) SpatialErrors() []float64 {
	errs := make([]float64, len(r.Results))
	for i, res := range r.Results {
		errs[i] = res.ErrorMM
	}
	return errs
}

// MeanErrorMM is the mean spatial error over all samples.
func (r *Report) MeanErrorMM() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return stat.Mean(r.SpatialErrors(), nil)
}

// MinErrorMM is the best-case spatial error over all samples.
func (r *Report) MinErrorMM() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return floats.Min(r.SpatialErrors())
}

// String renders the printable summary block.
func (r *Report) String() string {
	return fmt.Sprintf(`--- EVALUATION RESULTS ---
Anatomical ID Accuracy: %.1f%%
Mean Spatial Error: %.2f mm
Best Case Precision: %.2f mm
--------------------------`,
		r.Accuracy()*100, r.MeanErrorMM(), r.MinErrorMM())
}

// Accuracy computes the fraction of matching predictions. Slices must have
// equal length.
func Accuracy(predicted, truth []int) float64 {
	if len(predicted) != len(truth) {
		panic(fmt.Sprintf("accuracy over mismatched slices: %d vs %d", len(predicted), len(truth)))
	}
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if predicted[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// SpatialErrorMM denormalizes a predicted regression output with the training
// statistics and returns its Euclidean distance in millimeters from the
// ground truth.
func SpatialErrorMM(stats *datasets.CoordStats, predNorm [3]float32, truthMM datasets.Coord) float64 {
	pred := stats.Denormalize(datasets.Coord{
		float64(predNorm[0]), float64(predNorm[1]), float64(predNorm[2]),
	})
	return pred.Distance(truthMM)
}

// Run loads the persisted parameters and the held-out partition, runs
// inference sample by sample and aggregates the report. The test partition
// view is built with the training partition's statistics.
func Run(cfg Config) (*Report, error) {
	// Load must find a saved checkpoint; a directory left behind by an
	// aborted training run is not a trained model.
	ctx := context.New()
	if _, err := checkpoints.Load(ctx).Dir(cfg.CheckpointDir).Done(); err != nil {
		return nil, &ModelNotFoundError{Dir: cfg.CheckpointDir}
	}

	trainDS, err := datasets.NewLandmarkDataset(cfg.Annotations, datasets.Train)
	if err != nil {
		return nil, err
	}
	testDS, err := datasets.NewEvaluationDataset(cfg.Annotations, trainDS.Stats())
	if err != nil {
		return nil, err
	}
	if cfg.Model.NumClasses == 0 {
		cfg.Model.NumClasses = testDS.Labels().NumClasses()
	}
	// The resolved model configuration must match the one the parameters
	// were trained at; an explicit resolution also drives the dataset resize.
	cfg.Model = cfg.Model.WithDefaults()
	testDS.ImageSize = cfg.Model.ImageSize

	backend, err := simplego.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	exec, err := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, images *graph.Node) []*graph.Node {
		return landmark.Forward(cfg.Model, ctx, images)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile inference graph: %w", err)
	}

	report := &Report{Labels: testDS.Labels()}
	for i := 0; i < testDS.Len(); i++ {
		batch, err := testDS.Batch([]int{i})
		if err != nil {
			return nil, err
		}
		images, _, _ := batch.ToGomlxTensors()
		outputs, err := exec.Exec(images)
		if err != nil {
			return nil, fmt.Errorf("inference failed on sample %d: %w", i, err)
		}

		logits := outputs[0].Value().([][]float32)[0]
		predNorm := outputs[1].Value().([][]float32)[0]

		rec := testDS.Record(i)
		trueClass := int(batch.Classes[0])
		predCoord := testDS.Stats().Denormalize(datasets.Coord{
			float64(predNorm[0]), float64(predNorm[1]), float64(predNorm[2]),
		})

		report.Results = append(report.Results, Result{
			CaseID:    rec.CaseID,
			TrueClass: trueClass,
			PredClass: argmax(logits),
			TrueMM:    rec.Coord,
			PredMM:    predCoord,
			ErrorMM:   predCoord.Distance(rec.Coord),
		})
	}
	return report, nil
}

func argmax(values []float32) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
