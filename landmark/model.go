// Package landmark defines the dual-head model that predicts, from a single
// fluoroscopy image, both the anatomical landmark identity and its 3D
// position. A shared convolutional backbone feeds two independent linear
// projections: class logits and a 3-vector regression output. Sharing the
// backbone forces the learned representation to serve both tasks, letting
// position-relevant cues such as joint shape and bone contour help identity
// classification and vice versa.
package landmark

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
)

// CoordDim is the dimensionality of the regression head output.
const CoordDim = 3

// Config holds the model hyperparameters. Zero values are filled with
// defaults by WithDefaults, so an empty Config is usable.
type Config struct {
	// NumClasses is the size of the fixed landmark set.
	NumClasses int

	// ImageSize is the spatial resolution of input images (square).
	ImageSize int

	// Filters lists the channel width of each backbone stage. Every stage is
	// convolution, ReLU, then 2x2 max-pooling.
	Filters []int
}

// WithDefaults returns cfg with zero fields replaced by defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.NumClasses == 0 {
		cfg.NumClasses = 4
	}
	if cfg.ImageSize == 0 {
		cfg.ImageSize = 224
	}
	if len(cfg.Filters) == 0 {
		cfg.Filters = []int{16, 32, 64, 128}
	}
	return cfg
}

// Forward builds the dual-head graph for a batch of images shaped
// [batch, size, size, 3] and returns [logits, coords]. It is a pure
// feed-forward function of the inputs and the parameters held by ctx; all
// interaction between the heads goes through the shared features.
func Forward(cfg Config, ctx *context.Context, images *graph.Node) []*graph.Node {
	cfg = cfg.WithDefaults()

	x := images
	for i, filters := range cfg.Filters {
		scope := ctx.In(fmt.Sprintf("backbone_%d", i))
		x = layers.Convolution(scope, x).Filters(filters).KernelSize(3).PadSame().Done()
		x = activations.Relu(x)
		x = graph.MaxPool(x).Window(2).Done()
	}
	// Global average pool over the spatial axes of the NHWC activations.
	features := graph.ReduceMean(x, 1, 2)

	logits := layers.DenseWithBias(ctx.In("classifier"), features, cfg.NumClasses)
	coords := layers.DenseWithBias(ctx.In("regressor"), features, CoordDim)
	return []*graph.Node{logits, coords}
}

// ModelFn adapts Forward to the gomlx trainer signature.
func ModelFn(cfg Config) func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	return func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
		return Forward(cfg, ctx, inputs[0])
	}
}

// MultiTaskLoss sums the categorical cross-entropy of the classification head
// and the mean squared error of the regression head, unweighted. Both losses
// operate on a comparable numeric scale because regression targets are
// standardized to zero mean and unit variance before they reach the loss, so
// no manual task weighting is needed.
//
// labels[0] holds the class indices, labels[1] the normalized coordinates;
// predictions follow the order returned by Forward.
func MultiTaskLoss(labels, predictions []*graph.Node) *graph.Node {
	classification := losses.SparseCategoricalCrossEntropyLogits(
		[]*graph.Node{labels[0]}, []*graph.Node{predictions[0]})
	regression := losses.MeanSquaredError(
		[]*graph.Node{labels[1]}, []*graph.Node{predictions[1]})
	return graph.Add(graph.ReduceAllMean(classification), graph.ReduceAllMean(regression))
}
