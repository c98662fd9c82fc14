// Command evaluate runs inference over the held-out test partition with the
// persisted parameters and prints the accuracy and spatial-error summary.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/fluoroml/landmarknet/evaluate"
)

func main() {
	annotations := flag.String("annotations", "data/annotations_v2.csv", "path to the annotation table")
	checkpointDir := flag.String("checkpoint", "logs/multitask", "checkpoint directory written by the train command")
	perSample := flag.Bool("per-sample", false, "also print one line per test sample")
	flag.Parse()

	report, err := evaluate.Run(evaluate.Config{
		Annotations:   *annotations,
		CheckpointDir: *checkpointDir,
	})
	if err != nil {
		var notFound *evaluate.ModelNotFoundError
		if errors.As(err, &notFound) {
			log.Fatalf("%v; run the train command first", err)
		}
		log.Fatalf("evaluation failed: %v", err)
	}

	fmt.Printf("Testing on %d unseen images...\n", len(report.Results))
	if *perSample {
		for _, res := range report.Results {
			status := "ok"
			if res.PredClass != res.TrueClass {
				status = "MISCLASSIFIED"
			}
			fmt.Printf("%s: predicted %s, error %.2f mm [%s]\n",
				res.CaseID, report.Labels.Name(res.PredClass), res.ErrorMM, status)
		}
	}
	fmt.Println()
	fmt.Println(report)
}
