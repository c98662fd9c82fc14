package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Partition tags a row of the annotation table as belonging to the training
// or the held-out test split.
type Partition string

const (
	Train Partition = "train"
	Test  Partition = "test"
)

// AnnotationRecord is one row of the annotation table: a case, the image it
// refers to, the identity of the imaged landmark and its ground-truth 3D
// position in millimeters. Records are immutable once loaded.
type AnnotationRecord struct {
	CaseID       string
	ImagePath    string
	LandmarkID   int // 1-based identity from the annotation table
	LandmarkName string
	Coord        Coord // ground truth in millimeters
	Mode         Partition
}

// Columns the annotation table must carry. Extra columns (cadaver metadata
// such as age or weight) are tolerated and ignored.
var requiredColumns = []string{"case_number", "filename", "landmark_id", "x", "y", "z", "mode"}

// LoadAnnotations reads the annotation table at path and returns the records
// whose partition tag matches mode, preserving table order. An empty mode
// returns every row. A missing table is reported as *DataNotFoundError;
// referenced images are not touched here, they are only opened at sample
// access time.
func LoadAnnotations(path string, mode Partition) ([]AnnotationRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DataNotFoundError{Path: path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("required column %q not found in %s", col, path)
		}
	}

	var records []AnnotationRecord
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of %s: %w", row, path, err)
		}

		rec, err := parseRecord(record, colIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to parse row %d of %s: %w", row, path, err)
		}
		if mode == "" || rec.Mode == mode {
			records = append(records, rec)
		}
		row++
	}
	return records, nil
}

func parseRecord(record []string, colIndex map[string]int) (AnnotationRecord, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[colIndex[name]])
	}

	landmarkID, err := strconv.Atoi(field("landmark_id"))
	if err != nil {
		return AnnotationRecord{}, fmt.Errorf("failed to parse landmark_id: %w", err)
	}

	var coord Coord
	for a, name := range []string{"x", "y", "z"} {
		v, err := parseFloat(field(name))
		if err != nil {
			return AnnotationRecord{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		coord[a] = v
	}

	rec := AnnotationRecord{
		CaseID:     field("case_number"),
		ImagePath:  normalizePath(field("filename")),
		LandmarkID: landmarkID,
		Coord:      coord,
		Mode:       Partition(field("mode")),
	}
	if idx, ok := colIndex["landmark_name"]; ok && idx < len(record) {
		rec.LandmarkName = strings.TrimSpace(record[idx])
	}
	if rec.Mode != Train && rec.Mode != Test {
		return AnnotationRecord{}, fmt.Errorf("unknown partition tag %q", rec.Mode)
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

// normalizePath converts Windows-style separators seen in some annotation
// tables to forward slashes.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
