// Command fetchimages acquires the synthetic fluoroscopy images referenced
// by the annotation table from the Replicate API. Files that already exist
// and are non-empty are skipped, so interrupted runs resume where they left
// off.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/fluoroml/landmarknet/datasets"
	"github.com/fluoroml/landmarknet/replicate"
)

func main() {
	csvPath := flag.String("csv", "data/annotations_v2.csv", "annotation table listing the images to fetch")
	delay := flag.Duration("delay", 15*time.Second, "pause between API requests")
	flag.Parse()

	token := os.Getenv("REPLICATE_API_TOKEN")
	if token == "" {
		log.Fatalf("REPLICATE_API_TOKEN is not set")
	}

	records, err := datasets.LoadAnnotations(*csvPath, "")
	if err != nil {
		log.Fatalf("failed to load annotations: %v", err)
	}

	requests := make([]replicate.FetchRequest, 0, len(records))
	for _, rec := range records {
		requests = append(requests, replicate.FetchRequest{
			Path:   rec.ImagePath,
			Prompt: replicate.FluoroscopyPrompt(rec.LandmarkName+" skeletal landmark", "adult", 60),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := replicate.NewClient(token)
	client.Delay = *delay

	fmt.Printf("Fetching up to %d images (existing files are skipped)...\n", len(requests))
	written, err := client.FetchAll(ctx, requests)
	if err != nil {
		log.Fatalf("fetch aborted after %d new images: %v", written, err)
	}
	fmt.Printf("Generation complete. Added %d new images to the dataset.\n", written)
}
