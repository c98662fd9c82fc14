// Command train fits the dual-head landmark model on the training partition
// of the annotation table and persists the parameters to the checkpoint
// directory used by the evaluate and visualize commands.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fluoroml/landmarknet/trainer"
)

// defaultConfigJSON is written next to the checkpoint directory when the
// user did not provide a --config path, so the effective defaults are
// visible on disk. Flags override JSON values.
const defaultConfigJSON = `{
  "annotations": "data/annotations_v2.csv",
  "checkpoint_dir": "logs/multitask",
  "batch_size": 4,
  "epochs": 150,
  "learning_rate": 0.0001,
  "seed": 42
}
`

type fileConfig struct {
	Annotations   string  `json:"annotations"`
	CheckpointDir string  `json:"checkpoint_dir"`
	BatchSize     int     `json:"batch_size"`
	Epochs        int     `json:"epochs"`
	LearningRate  float64 `json:"learning_rate"`
	Seed          int64   `json:"seed"`
}

func main() {
	configPath := flag.String("config", "", "optional JSON config file")
	annotations := flag.String("annotations", "data/annotations_v2.csv", "path to the annotation table")
	checkpointDir := flag.String("checkpoint", "logs/multitask", "checkpoint directory")
	epochs := flag.Int("epochs", 0, "epoch count (0 = config or default)")
	batchSize := flag.Int("batch", 0, "batch size (0 = config or default)")
	learningRate := flag.Float64("lr", 0, "Adam learning rate (0 = config or default)")
	seed := flag.Int64("seed", 0, "random seed (0 = config or default)")
	flag.Parse()

	cfg := trainer.Config{
		Annotations:   *annotations,
		CheckpointDir: *checkpointDir,
		Epochs:        *epochs,
		BatchSize:     *batchSize,
		LearningRate:  *learningRate,
		Seed:          *seed,
	}
	if *configPath != "" {
		fc, err := loadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		applyConfig(&cfg, fc)
	} else {
		// Write the defaults next to the binary as a convenience so the
		// effective configuration is visible on disk; flags stay in charge.
		if _, err := os.Stat("train_config.json"); os.IsNotExist(err) {
			if err := os.WriteFile("train_config.json", []byte(defaultConfigJSON), 0o644); err != nil {
				log.Printf("could not write train_config.json: %v", err)
			}
		}
	}

	t, err := trainer.New(cfg)
	if err != nil {
		log.Fatalf("failed to set up training: %v", err)
	}

	eff := t.Config()
	fmt.Printf("Training on %d samples for %d epochs (batch %d, lr %g)\n",
		t.Dataset().Len(), eff.Epochs, eff.BatchSize, eff.LearningRate)

	stats, err := t.Run()
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	if len(stats) > 0 {
		fmt.Printf("Training complete. Final mean loss: %.4f\n", stats[len(stats)-1].MeanLoss)
	}
	fmt.Printf("Model saved to %s\n", eff.CheckpointDir)
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// applyConfig fills zero-valued fields of cfg from the JSON file; explicit
// flags keep precedence.
func applyConfig(cfg *trainer.Config, fc *fileConfig) {
	if fc.Annotations != "" && cfg.Annotations == "data/annotations_v2.csv" {
		cfg.Annotations = fc.Annotations
	}
	if fc.CheckpointDir != "" && cfg.CheckpointDir == "logs/multitask" {
		cfg.CheckpointDir = fc.CheckpointDir
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = fc.Epochs
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = fc.BatchSize
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = fc.LearningRate
	}
	if cfg.Seed == 0 {
		cfg.Seed = fc.Seed
	}
}
