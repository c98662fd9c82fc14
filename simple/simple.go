// Package simple provides a small self-contained dual-head MLP with the same
// loss semantics as the full convolutional model: one shared trunk feeding a
// classification head and a coordinate regression head, trained by
// minimizing the unweighted sum of cross-entropy and mean squared error.
// It has no external deep-learning dependencies so tests of the training
// semantics can run quickly and deterministically.
package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Config holds configurable hyperparameters for the reference network.
type Config struct {
	// InputDim is the dimensionality of the input feature vector.
	InputDim int

	// HiddenSizes is the list of shared trunk layer sizes. If empty, a single
	// hidden layer of size 32 is used.
	HiddenSizes []int

	// NumClasses is the size of the landmark set (classification head width).
	NumClasses int

	// CoordDim is the regression head width (default 3).
	CoordDim int

	// LearningRate used by the per-batch SGD update.
	LearningRate float64

	// Epochs to train for.
	Epochs int

	// BatchSize for mini-batch updates.
	BatchSize int

	// Seed controls RNG for weight init and shuffling. Explicit so tests are
	// deterministic; if zero, 1 is used.
	Seed int64
}

// Sample is one training example: a feature vector, a zero-based class index
// and a normalized coordinate target.
type Sample struct {
	Features []float32
	Class    int
	Coord    []float32
}

// Model is the reference dual-head network. The trunk layers are shared; the
// two heads are independent linear projections of the last trunk activation.
type Model struct {
	Config Config

	// trunkSizes includes the input size followed by hidden sizes.
	trunkSizes []int

	// weights[l] is a matrix of shape [out][in] for trunk layer l -> l+1.
	weights [][][]float32
	biases  [][]float32

	// classification head: [NumClasses][lastHidden] plus bias.
	clsW [][]float32
	clsB []float32

	// regression head: [CoordDim][lastHidden] plus bias.
	regW [][]float32
	regB []float32

	rng *rand.Rand
}

// NewModel creates a Model with the provided configuration, filling in
// defaults for zero values and initializing weights with small random values.
func NewModel(cfg Config) (*Model, error) {
	if cfg.InputDim <= 0 {
		return nil, errors.New("config requires a positive InputDim")
	}
	if cfg.NumClasses <= 1 {
		return nil, errors.New("config requires at least 2 classes")
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{32}
	}
	if cfg.CoordDim == 0 {
		cfg.CoordDim = 3
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	m.trunkSizes = append([]int{cfg.InputDim}, cfg.HiddenSizes...)
	L := len(m.trunkSizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		m.weights[l] = m.initMatrix(m.trunkSizes[l+1], m.trunkSizes[l])
		m.biases[l] = make([]float32, m.trunkSizes[l+1])
	}

	lastHidden := m.trunkSizes[L]
	m.clsW = m.initMatrix(cfg.NumClasses, lastHidden)
	m.clsB = make([]float32, cfg.NumClasses)
	m.regW = m.initMatrix(cfg.CoordDim, lastHidden)
	m.regB = make([]float32, cfg.CoordDim)

	return m, nil
}

// initMatrix allocates an [out][in] matrix with Xavier/Glorot uniform values.
func (m *Model) initMatrix(out, in int) [][]float32 {
	limit := float32(math.Sqrt(6.0 / float64(in+out)))
	mat := make([][]float32, out)
	for j := range mat {
		row := make([]float32, in)
		for i := range row {
			row[i] = (m.rng.Float32()*2.0 - 1.0) * limit
		}
		mat[j] = row
	}
	return mat
}

// forwardTrunk runs the shared trunk, returning pre-activations and
// activations per layer (activations[0] is the input).
func (m *Model) forwardTrunk(input []float32) (preActs, acts [][]float32, err error) {
	if len(input) != m.trunkSizes[0] {
		return nil, nil, fmt.Errorf("input has dimension %d, want %d", len(input), m.trunkSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = input
	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		pre := matVec(m.weights[l], acts[l], m.biases[l])
		preActs[l] = pre
		act := make([]float32, len(pre))
		for i, v := range pre {
			if v > 0 {
				act[i] = v
			}
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// Forward runs a full forward pass for one feature vector, returning class
// logits and the regression output.
func (m *Model) Forward(input []float32) (logits, coords []float32, err error) {
	_, acts, err := m.forwardTrunk(input)
	if err != nil {
		return nil, nil, err
	}
	h := acts[len(acts)-1]
	return matVec(m.clsW, h, m.clsB), matVec(m.regW, h, m.regB), nil
}

// Predict returns the argmax class and the regression output for one input.
func (m *Model) Predict(input []float32) (class int, coords []float32, err error) {
	logits, coords, err := m.Forward(input)
	if err != nil {
		return 0, nil, err
	}
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[class] {
			class = i
		}
	}
	return class, coords, nil
}

// Train runs mini-batch SGD over the samples for the configured epoch count
// and returns the mean combined loss of each epoch. The combined loss per
// example is cross-entropy of the classification head plus mean squared
// error of the regression head, summed unweighted.
func (m *Model) Train(samples []Sample) ([]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("no training samples")
	}
	for i, s := range samples {
		if s.Class < 0 || s.Class >= m.Config.NumClasses {
			return nil, fmt.Errorf("sample %d has class %d outside [0, %d)", i, s.Class, m.Config.NumClasses)
		}
		if len(s.Coord) != m.Config.CoordDim {
			return nil, fmt.Errorf("sample %d has coordinate dimension %d, want %d", i, len(s.Coord), m.Config.CoordDim)
		}
	}

	n := len(samples)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	lr := float32(m.Config.LearningRate)
	epochLosses := make([]float64, 0, m.Config.Epochs)
	for epoch := 0; epoch < m.Config.Epochs; epoch++ {
		m.rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var epochLoss float64
		for start := 0; start < n; start += m.Config.BatchSize {
			end := start + m.Config.BatchSize
			if end > n {
				end = n
			}
			loss := m.trainBatch(samples, indices[start:end], lr)
			epochLoss += loss * float64(end-start)
		}
		epochLosses = append(epochLosses, epochLoss/float64(n))
	}
	return epochLosses, nil
}

// trainBatch accumulates gradients over one mini-batch, applies the averaged
// SGD update and returns the mean combined loss of the batch.
func (m *Model) trainBatch(samples []Sample, batch []int, lr float32) float64 {
	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := 0; l < L; l++ {
		gradW[l] = zeroMatrix(len(m.weights[l]), len(m.weights[l][0]))
		gradB[l] = make([]float32, len(m.biases[l]))
	}
	gClsW := zeroMatrix(len(m.clsW), len(m.clsW[0]))
	gClsB := make([]float32, len(m.clsB))
	gRegW := zeroMatrix(len(m.regW), len(m.regW[0]))
	gRegB := make([]float32, len(m.regB))

	var totalLoss float64
	for _, idx := range batch {
		s := samples[idx]
		preActs, acts, err := m.forwardTrunk(s.Features)
		if err != nil {
			// Dimensions were validated in Train.
			panic(err)
		}
		h := acts[len(acts)-1]
		logits := matVec(m.clsW, h, m.clsB)
		coords := matVec(m.regW, h, m.regB)

		probs := softmax(logits)
		totalLoss += -math.Log(math.Max(float64(probs[s.Class]), 1e-12))
		var mse float64
		for j := range coords {
			d := float64(coords[j] - s.Coord[j])
			mse += d * d
		}
		totalLoss += mse / float64(len(coords))

		// dLoss/dlogits = softmax - onehot
		dLogits := make([]float32, len(logits))
		copy(dLogits, probs)
		dLogits[s.Class] -= 1.0

		// dLoss/dcoords = 2*(pred - target)/CoordDim
		dCoords := make([]float32, len(coords))
		for j := range coords {
			dCoords[j] = 2.0 * (coords[j] - s.Coord[j]) / float32(len(coords))
		}

		// Head gradients plus the combined delta entering the trunk.
		dh := make([]float32, len(h))
		for j, d := range dLogits {
			gClsB[j] += d
			for i, hv := range h {
				gClsW[j][i] += d * hv
				dh[i] += m.clsW[j][i] * d
			}
		}
		for j, d := range dCoords {
			gRegB[j] += d
			for i, hv := range h {
				gRegW[j][i] += d * hv
				dh[i] += m.regW[j][i] * d
			}
		}

		// Backprop through the shared trunk.
		delta := dh
		for l := L - 1; l >= 0; l-- {
			for i, pre := range preActs[l] {
				if pre <= 0 {
					delta[i] = 0
				}
			}
			inAct := acts[l]
			for j, d := range delta {
				gradB[l][j] += d
				for i, a := range inAct {
					gradW[l][j][i] += d * a
				}
			}
			if l > 0 {
				prev := make([]float32, len(acts[l]))
				for j, d := range delta {
					for i := range prev {
						prev[i] += m.weights[l][j][i] * d
					}
				}
				delta = prev
			}
		}
	}

	// Averaged SGD update.
	bInv := float32(1.0 / float64(len(batch)))
	for l := 0; l < L; l++ {
		applyUpdate(m.weights[l], m.biases[l], gradW[l], gradB[l], lr*bInv)
	}
	applyUpdate(m.clsW, m.clsB, gClsW, gClsB, lr*bInv)
	applyUpdate(m.regW, m.regB, gRegW, gRegB, lr*bInv)

	return totalLoss / float64(len(batch))
}

func matVec(w [][]float32, x, bias []float32) []float32 {
	out := make([]float32, len(w))
	for j, row := range w {
		sum := bias[j]
		for i, v := range x {
			sum += row[i] * v
		}
		out[j] = sum
	}
	return out
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxLogit))
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i := range out {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

func zeroMatrix(out, in int) [][]float32 {
	mat := make([][]float32, out)
	for j := range mat {
		mat[j] = make([]float32, in)
	}
	return mat
}

func applyUpdate(w [][]float32, b []float32, gw [][]float32, gb []float32, step float32) {
	for j := range w {
		b[j] -= step * gb[j]
		for i := range w[j] {
			w[j][i] -= step * gw[j][i]
		}
	}
}
