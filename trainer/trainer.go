// Package trainer runs the multi-task training loop: for every batch it
// computes the summed classification and regression loss on the training
// partition and takes one Adam step, persisting parameters to a checkpoint
// directory at the best observed epoch and again at the end of training.
package trainer

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"

	"github.com/fluoroml/landmarknet/datasets"
	"github.com/fluoroml/landmarknet/landmark"
)

// Config holds the training hyperparameters. Zero values are replaced with
// the reference configuration: batch size 4, 150 epochs, Adam at 1e-4.
type Config struct {
	// Annotations is the path to the annotation table.
	Annotations string

	// CheckpointDir is the well-known location trained parameters are
	// persisted to and evaluation loads them from.
	CheckpointDir string

	// BatchSize for mini-batch updates.
	BatchSize int

	// Epochs is the fixed epoch count; there is no early stopping.
	Epochs int

	// LearningRate for the Adam optimizer.
	LearningRate float64

	// Seed controls parameter initialization and epoch shuffling so runs are
	// reproducible. If zero, a fixed default is used; ambient global state is
	// never consulted.
	Seed int64

	// Model configures the dual-head architecture.
	Model landmark.Config
}

func (cfg Config) withDefaults() Config {
	if cfg.CheckpointDir == "" {
		cfg.CheckpointDir = "logs/multitask"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 4
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 150
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 1e-4
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return cfg
}

// EpochStat records the mean combined loss of one epoch.
type EpochStat struct {
	Epoch    int
	MeanLoss float64
}

// Trainer owns the model parameters for the duration of training. It is the
// only writer of the gomlx context; evaluation reads a persisted snapshot.
type Trainer struct {
	cfg Config

	backend    backends.Backend
	ctx        *context.Context
	ds         *datasets.LandmarkDataset
	checkpoint *checkpoints.Handler
	rng        *rand.Rand
}

// New builds the training partition's dataset view, the execution backend and
// a freshly seeded parameter context.
func New(cfg Config) (*Trainer, error) {
	cfg = cfg.withDefaults()

	ds, err := datasets.NewLandmarkDataset(cfg.Annotations, datasets.Train)
	if err != nil {
		return nil, err
	}
	ds.BatchSize = cfg.BatchSize
	// The class count comes from the annotation table, never from the model
	// defaults, so the head width always matches the label set.
	if cfg.Model.NumClasses == 0 {
		cfg.Model.NumClasses = ds.Labels().NumClasses()
	}
	cfg.Model = cfg.Model.WithDefaults()
	// The model resolution drives the dataset resize.
	ds.ImageSize = cfg.Model.ImageSize

	backend, err := simplego.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	ctx := context.New()
	ctx.RngStateFromSeed(cfg.Seed)

	checkpoint, err := checkpoints.Build(ctx).Dir(cfg.CheckpointDir).Keep(3).Done()
	if err != nil {
		return nil, fmt.Errorf("failed to set up checkpointing in %s: %w", cfg.CheckpointDir, err)
	}

	return &Trainer{
		cfg:        cfg,
		backend:    backend,
		ctx:        ctx,
		ds:         ds,
		checkpoint: checkpoint,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Dataset returns the training partition view. Its Stats() must be threaded
// into evaluation so that denormalization inverts the training-time
// normalization.
func (t *Trainer) Dataset() *datasets.LandmarkDataset { return t.ds }

// Config returns the effective configuration after defaults were applied.
func (t *Trainer) Config() Config { return t.cfg }

// Run executes the training loop to the configured epoch count and returns
// per-epoch loss statistics. Parameters are saved whenever the mean epoch
// loss improves and unconditionally after the last epoch, so the latest
// checkpoint always reflects the final parameter set.
func (t *Trainer) Run() ([]EpochStat, error) {
	gtrainer := train.NewTrainer(
		t.backend, t.ctx,
		landmark.ModelFn(t.cfg.Model),
		landmark.MultiTaskLoss,
		optimizers.Adam().LearningRate(t.cfg.LearningRate).Done(),
		nil, nil)

	n := t.ds.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	stats := make([]EpochStat, 0, t.cfg.Epochs)
	bestLoss := math.Inf(1)
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var epochLoss float64
		batches := 0
		for start := 0; start < n; start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > n {
				end = n
			}
			batch, err := t.ds.Batch(indices[start:end])
			if err != nil {
				return stats, err
			}
			images, classes, coords := batch.ToGomlxTensors()

			// gomlx reports graph/execution failures as panics.
			var metrics []*tensors.Tensor
			err = exceptions.TryCatch[error](func() {
				metrics = gtrainer.TrainStep(nil,
					[]*tensors.Tensor{images},
					[]*tensors.Tensor{classes, coords})
			})
			if err != nil {
				return stats, fmt.Errorf("train step failed at epoch %d: %w", epoch, err)
			}
			epochLoss += float64(tensors.ToScalar[float32](metrics[0]))
			batches++
		}

		mean := epochLoss / float64(batches)
		stats = append(stats, EpochStat{Epoch: epoch, MeanLoss: mean})
		log.Printf("epoch %d | mean loss: %.4f", epoch, mean)

		if mean < bestLoss {
			bestLoss = mean
			if err := t.checkpoint.Save(); err != nil {
				return stats, fmt.Errorf("failed to save checkpoint at epoch %d: %w", epoch, err)
			}
		}
	}

	// Last epoch wins: the final parameter set is always the latest
	// checkpoint regardless of the best-loss saves above.
	if err := t.checkpoint.Save(); err != nil {
		return stats, fmt.Errorf("failed to save final checkpoint: %w", err)
	}
	return stats, nil
}
