package landmark

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.NumClasses != 4 {
		t.Errorf("NumClasses default = %d, want 4", cfg.NumClasses)
	}
	if cfg.ImageSize != 224 {
		t.Errorf("ImageSize default = %d, want 224", cfg.ImageSize)
	}
	if len(cfg.Filters) != 4 || cfg.Filters[0] != 16 || cfg.Filters[3] != 128 {
		t.Errorf("unexpected default filter widths %v", cfg.Filters)
	}
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{NumClasses: 7, ImageSize: 96, Filters: []int{8}}.WithDefaults()
	if cfg.NumClasses != 7 || cfg.ImageSize != 96 || len(cfg.Filters) != 1 {
		t.Errorf("explicit values were overwritten: %+v", cfg)
	}
}

// Builds and executes the dual-head graph plus the combined loss on a real
// backend with a tiny configuration, checking head shapes and that the loss
// is a finite scalar.
func TestForwardAndLossOnBackend(t *testing.T) {
	backend, err := simplego.New("")
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	cfg := Config{NumClasses: 2, ImageSize: 16, Filters: []int{4}}

	ctx := context.New()
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, images, classes, coords *graph.Node) []*graph.Node {
			outputs := Forward(cfg, ctx, images)
			loss := MultiTaskLoss([]*graph.Node{classes, coords}, outputs)
			return []*graph.Node{outputs[0], outputs[1], loss}
		})
	if err != nil {
		t.Fatalf("failed to compile graph: %v", err)
	}

	const batch = 2
	pixels := make([]float32, batch*16*16*3)
	for i := range pixels {
		pixels[i] = float32(i%7)/7.0 - 0.5
	}
	images := tensors.FromFlatDataAndDimensions(pixels, batch, 16, 16, 3)
	classes := tensors.FromFlatDataAndDimensions([]int32{0, 1}, batch, 1)
	coords := tensors.FromFlatDataAndDimensions([]float32{0.5, -0.5, 0, -1, 1, 0.25}, batch, 3)

	results, err := exec.Exec(images, classes, coords)
	if err != nil {
		t.Fatalf("graph execution failed: %v", err)
	}

	logitsDims := results[0].Shape().Dimensions
	if len(logitsDims) != 2 || logitsDims[0] != batch || logitsDims[1] != cfg.NumClasses {
		t.Errorf("logits shaped %v, want [%d %d]", logitsDims, batch, cfg.NumClasses)
	}
	coordDims := results[1].Shape().Dimensions
	if len(coordDims) != 2 || coordDims[0] != batch || coordDims[1] != CoordDim {
		t.Errorf("regression output shaped %v, want [%d %d]", coordDims, batch, CoordDim)
	}

	loss := float64(tensors.ToScalar[float32](results[2]))
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Errorf("combined loss is not finite: %f", loss)
	}
}
