// Package synth bootstraps the on-disk dataset layout and generates the
// annotation table consumed by the training pipeline. Ground-truth
// coordinates are the reference anatomical positions of each landmark plus a
// small seeded Gaussian jitter, mirroring how the cadaver model was
// annotated. The train/test split is a deterministic function of the case
// identifier, not of a process-dependent string hash.
package synth

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fluoroml/landmarknet/datasets"
)

// Landmark describes one entry of the fixed anatomical set: its 1-based
// identity, display name and reference position in millimeters relative to
// the center of the bed.
type Landmark struct {
	ID   int
	Name string
	Base datasets.Coord
}

// ReferenceLandmarks is the fixed skeletal set of the reference cadaver
// model.
var ReferenceLandmarks = []Landmark{
	{ID: 1, Name: "T1", Base: datasets.Coord{0, 450, 10}},
	{ID: 2, Name: "L_Humeral_Head", Base: datasets.Coord{-180, 420, 5}},
	{ID: 3, Name: "R_Humeral_Head", Base: datasets.Coord{180, 420, 5}},
	{ID: 4, Name: "Pelvis", Base: datasets.Coord{0, 0, 0}},
}

// Config controls dataset generation. Zero values fall back to the reference
// setup: data/Landmarks folders, sigma 5 mm jitter, 80/20 split.
type Config struct {
	// BaseDir is the root of the per-landmark image folders.
	BaseDir string

	// CSVPath is where the annotation table is written.
	CSVPath string

	// PerLandmark is how many cases to generate per landmark when
	// generating placeholder rows (GenerateCases).
	PerLandmark int

	// Jitter is the standard deviation in millimeters added to the
	// reference position of each case.
	Jitter float64

	// TrainFraction of cases assigned to the training partition.
	TrainFraction float64

	// Seed drives both the coordinate jitter and the partition assignment.
	Seed int64

	// StartCase numbers cases sequentially from this value.
	StartCase int

	Landmarks []Landmark
}

func (cfg Config) withDefaults() Config {
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join("data", "Landmarks")
	}
	if cfg.CSVPath == "" {
		cfg.CSVPath = filepath.Join("data", "annotations_v2.csv")
	}
	if cfg.PerLandmark == 0 {
		cfg.PerLandmark = 25
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = 5
	}
	if cfg.TrainFraction == 0 {
		cfg.TrainFraction = 0.8
	}
	if cfg.Seed == 0 {
		cfg.Seed = 7
	}
	if cfg.StartCase == 0 {
		cfg.StartCase = 1001
	}
	if len(cfg.Landmarks) == 0 {
		cfg.Landmarks = ReferenceLandmarks
	}
	return cfg
}

// Row is one generated annotation, including the cadaver metadata columns
// the core pipeline tolerates but ignores.
type Row struct {
	CaseID       string
	Filename     string
	LandmarkID   int
	LandmarkName string
	Coord        datasets.Coord
	Mode         datasets.Partition
	AgeYears     int
	SexCode      string
	WeightKG     float64
	LengthCM     float64
}

// Bootstrap creates the per-landmark folder layout under BaseDir.
func Bootstrap(cfg Config) error {
	cfg = cfg.withDefaults()
	for _, lm := range cfg.Landmarks {
		dir := filepath.Join(cfg.BaseDir, strconv.Itoa(lm.ID))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create landmark folder %s: %w", dir, err)
		}
	}
	return nil
}

// GenerateCases produces PerLandmark annotation rows per landmark with
// jittered coordinates and sequential case ids. Image files are not created;
// they are acquired separately and matched by filename.
func GenerateCases(cfg Config) []Row {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	var rows []Row
	caseNum := cfg.StartCase
	for _, lm := range cfg.Landmarks {
		for i := 0; i < cfg.PerLandmark; i++ {
			caseID := fmt.Sprintf("case-%d", caseNum)
			caseNum++
			rows = append(rows, Row{
				CaseID:       caseID,
				Filename:     filepath.Join(cfg.BaseDir, strconv.Itoa(lm.ID), caseID+".png"),
				LandmarkID:   lm.ID,
				LandmarkName: lm.Name,
				Coord: datasets.Coord{
					lm.Base[0] + rng.NormFloat64()*cfg.Jitter,
					lm.Base[1] + rng.NormFloat64()*cfg.Jitter,
					lm.Base[2] + rng.NormFloat64()*cfg.Jitter,
				},
				Mode:     SplitMode(caseID, cfg.TrainFraction, cfg.Seed),
				AgeYears: 45 + rng.Intn(40),
				SexCode:  []string{"M", "F"}[rng.Intn(2)],
				WeightKG: 60 + rng.Float64()*35,
				LengthCM: 160 + rng.Float64()*25,
			})
		}
	}
	return rows
}

// ScanImages walks the per-landmark folders and produces one annotation row
// for every PNG found, so tables can be rebuilt after images were added or
// removed. The case id is the image basename without extension.
func ScanImages(cfg Config) ([]Row, error) {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	var rows []Row
	for _, lm := range cfg.Landmarks {
		dir := filepath.Join(cfg.BaseDir, strconv.Itoa(lm.ID))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan landmark folder %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
				continue
			}
			caseID := strings.TrimSuffix(entry.Name(), ".png")
			rows = append(rows, Row{
				CaseID:       caseID,
				Filename:     filepath.Join(dir, entry.Name()),
				LandmarkID:   lm.ID,
				LandmarkName: lm.Name,
				Coord: datasets.Coord{
					lm.Base[0] + rng.NormFloat64()*cfg.Jitter,
					lm.Base[1] + rng.NormFloat64()*cfg.Jitter,
					lm.Base[2] + rng.NormFloat64()*cfg.Jitter,
				},
				Mode:     SplitMode(caseID, cfg.TrainFraction, cfg.Seed),
				AgeYears: 45 + rng.Intn(40),
				SexCode:  []string{"M", "F"}[rng.Intn(2)],
				WeightKG: 60 + rng.Float64()*35,
				LengthCM: 160 + rng.Float64()*25,
			})
		}
	}
	return rows, nil
}

// WriteCSV writes the annotation table in the column layout the loader
// expects.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"case_number", "filename", "landmark_id", "landmark_name",
		"x", "y", "z", "mode", "age_years", "sex_code", "cadaver_weight", "cadaver_length"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.CaseID,
			r.Filename,
			strconv.Itoa(r.LandmarkID),
			r.LandmarkName,
			strconv.FormatFloat(r.Coord[0], 'f', -1, 64),
			strconv.FormatFloat(r.Coord[1], 'f', -1, 64),
			strconv.FormatFloat(r.Coord[2], 'f', -1, 64),
			string(r.Mode),
			strconv.Itoa(r.AgeYears),
			r.SexCode,
			strconv.FormatFloat(r.WeightKG, 'f', 2, 64),
			strconv.FormatFloat(r.LengthCM, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SplitMode deterministically assigns a case to a partition. It hashes the
// case id together with the seed using FNV-1a, which is stable across runs
// and processes, and compares the folded hash against the train fraction.
func SplitMode(caseID string, trainFraction float64, seed int64) datasets.Partition {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", seed, caseID)
	bucket := float64(h.Sum64()%1000) / 1000.0
	if bucket < trainFraction {
		return datasets.Train
	}
	return datasets.Test
}
