// Command visualize renders the evaluation results as PNG plots: an overlay
// of ground-truth and predicted landmark positions in the bed plane, and a
// histogram of per-sample spatial errors.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fluoroml/landmarknet/evaluate"
)

func main() {
	annotations := flag.String("annotations", "data/annotations_v2.csv", "path to the annotation table")
	checkpointDir := flag.String("checkpoint", "logs/multitask", "checkpoint directory written by the train command")
	outDir := flag.String("out", "output", "directory to write plots to")
	flag.Parse()

	report, err := evaluate.Run(evaluate.Config{
		Annotations:   *annotations,
		CheckpointDir: *checkpointDir,
	})
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	if len(report.Results) == 0 {
		log.Fatalf("no test samples to visualize")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := plotPositions(*outDir, report); err != nil {
		log.Fatalf("failed to plot positions: %v", err)
	}
	if err := plotErrors(*outDir, report); err != nil {
		log.Fatalf("failed to plot error histogram: %v", err)
	}

	fmt.Println(report)
	log.Printf("Plots written to %s", *outDir)
}

// plotPositions overlays ground-truth (grey) and predicted (blue) landmark
// positions in the x/y bed plane, in millimeters.
func plotPositions(outDir string, report *evaluate.Report) error {
	truth := make(plotter.XYs, 0, len(report.Results))
	pred := make(plotter.XYs, 0, len(report.Results))
	for _, res := range report.Results {
		truth = append(truth, plotter.XY{X: res.TrueMM[0], Y: res.TrueMM[1]})
		pred = append(pred, plotter.XY{X: res.PredMM[0], Y: res.PredMM[1]})
	}

	p := plot.New()
	p.Title.Text = "Landmark positions: ground truth (grey), predicted (blue)"
	p.X.Label.Text = "x (mm)"
	p.Y.Label.Text = "y (mm)"

	gr, err := plotter.NewScatter(truth)
	if err != nil {
		return err
	}
	gr.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	gr.GlyphStyle.Radius = vg.Points(2.2)
	p.Add(gr)
	p.Legend.Add("ground truth", gr)

	pr, err := plotter.NewScatter(pred)
	if err != nil {
		return err
	}
	pr.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	pr.GlyphStyle.Radius = vg.Points(2.8)
	p.Add(pr)
	p.Legend.Add("predicted", pr)

	p.Add(plotter.NewGrid())
	xmin, xmax, ymin, ymax := autoRange(append(append(plotter.XYs{}, truth...), pred...))
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax

	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "positions.png"))
}

// plotErrors renders the distribution of per-sample spatial errors.
func plotErrors(outDir string, report *evaluate.Report) error {
	errs := report.SpatialErrors()
	values := make(plotter.Values, len(errs))
	copy(values, errs)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Spatial error (mean %.2f mm)", report.MeanErrorMM())
	p.X.Label.Text = "error (mm)"
	p.Y.Label.Text = "samples"

	bins := 16
	if len(errs) < bins {
		bins = len(errs)
	}
	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return err
	}
	p.Add(hist)

	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "errors.png"))
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, pt := range xs {
		xmin = math.Min(xmin, pt.X)
		xmax = math.Max(xmax, pt.X)
		ymin = math.Min(ymin, pt.Y)
		ymax = math.Max(ymax, pt.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1
	}
	if pady == 0 {
		pady = 1
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}
