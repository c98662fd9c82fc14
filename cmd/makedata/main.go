// Command makedata bootstraps the dataset folder layout and writes the
// annotation table, either by generating a fresh set of jittered cases or by
// scanning the landmark folders for images already on disk.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/fluoroml/landmarknet/synth"
)

func main() {
	baseDir := flag.String("base", "data/Landmarks", "root of the per-landmark image folders")
	csvPath := flag.String("csv", "data/annotations_v2.csv", "annotation table output path")
	perLandmark := flag.Int("per-landmark", 25, "cases to generate per landmark")
	seed := flag.Int64("seed", 7, "seed for coordinate jitter and the train/test split")
	scan := flag.Bool("scan", false, "scan existing images instead of generating new cases")
	flag.Parse()

	cfg := synth.Config{
		BaseDir:     *baseDir,
		CSVPath:     *csvPath,
		PerLandmark: *perLandmark,
		Seed:        *seed,
	}

	if err := synth.Bootstrap(cfg); err != nil {
		log.Fatalf("failed to bootstrap dataset folders: %v", err)
	}

	var rows []synth.Row
	if *scan {
		var err error
		rows, err = synth.ScanImages(cfg)
		if err != nil {
			log.Fatalf("failed to scan images: %v", err)
		}
	} else {
		rows = synth.GenerateCases(cfg)
	}
	if len(rows) == 0 {
		log.Fatalf("no annotation rows produced; is %s empty?", *baseDir)
	}

	if err := synth.WriteCSV(*csvPath, rows); err != nil {
		log.Fatalf("failed to write annotation table: %v", err)
	}

	perName := make(map[string]int)
	train := 0
	for _, r := range rows {
		perName[r.LandmarkName]++
		if r.Mode == "train" {
			train++
		}
	}
	fmt.Printf("Wrote %d annotations to %s (%d train / %d test)\n",
		len(rows), *csvPath, train, len(rows)-train)
	for _, lm := range synth.ReferenceLandmarks {
		fmt.Printf("  %-16s %d\n", lm.Name, perName[lm.Name])
	}
}
