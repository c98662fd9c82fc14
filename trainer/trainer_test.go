package trainer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fluoroml/landmarknet/evaluate"
	"github.com/fluoroml/landmarknet/landmark"
)

func writePNG(t *testing.T, path string, gray uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create png %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

// writeFixtureData writes a small annotation table with images: four train
// rows and two test rows over two landmarks.
func writeFixtureData(t *testing.T, dir string) string {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, "annotations.csv"))
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "case_number,filename,landmark_id,landmark_name,x,y,z,mode")
	for i := 0; i < 6; i++ {
		mode := "train"
		if i >= 4 {
			mode = "test"
		}
		id := i%2 + 1
		name := map[int]string{1: "T1", 2: "Pelvis"}[id]
		imgPath := filepath.Join(dir, fmt.Sprintf("case-%d.png", i))
		writePNG(t, imgPath, uint8(90+i*20))
		fmt.Fprintf(f, "case-%d,%s,%d,%s,%g,%g,%g,%s\n",
			i, imgPath, id, name, float64(i)*4, 400-float64(i)*15, float64(i)+1, mode)
	}
	return f.Name()
}

// One real epoch over a tiny dataset: the loss must come back finite and the
// checkpoint directory must hold a loadable parameter set that evaluation
// can run inference from.
func TestTrainAndEvaluateTinyDataset(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFixtureData(t, dir)
	checkpointDir := filepath.Join(dir, "ckpt")

	model := landmark.Config{ImageSize: 8, Filters: []int{2}}
	tr, err := New(Config{
		Annotations:   csvPath,
		CheckpointDir: checkpointDir,
		BatchSize:     2,
		Epochs:        1,
		LearningRate:  0.01,
		Seed:          5,
		Model:         model,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tr.Dataset().Len() != 4 {
		t.Fatalf("expected 4 training samples, got %d", tr.Dataset().Len())
	}

	stats, err := tr.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 epoch stat, got %d", len(stats))
	}
	if math.IsNaN(stats[0].MeanLoss) || math.IsInf(stats[0].MeanLoss, 0) {
		t.Fatalf("epoch loss is not finite: %f", stats[0].MeanLoss)
	}

	entries, err := os.ReadDir(checkpointDir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a saved checkpoint in %s: %v", checkpointDir, err)
	}

	report, err := evaluate.Run(evaluate.Config{
		Annotations:   csvPath,
		CheckpointDir: checkpointDir,
		Model:         model,
	})
	if err != nil {
		t.Fatalf("evaluation over the fresh checkpoint failed: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 test results, got %d", len(report.Results))
	}
	for _, res := range report.Results {
		if math.IsNaN(res.ErrorMM) || math.IsInf(res.ErrorMM, 0) {
			t.Fatalf("sample %s has non-finite spatial error %f", res.CaseID, res.ErrorMM)
		}
		if res.PredClass < 0 || res.PredClass >= 2 {
			t.Fatalf("sample %s predicted class %d outside the landmark set", res.CaseID, res.PredClass)
		}
	}
}
