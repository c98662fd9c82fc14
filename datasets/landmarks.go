package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// LandmarkDataset presents one partition of the annotation table as training
// examples: a normalized image tensor, a zero-based class index and a
// normalized 3D coordinate. Images are loaded lazily, only when a sample is
// accessed.
//
// The dataset implements the gomlx train.Dataset contract (Yield / Restart /
// Name) so it can drive gomlx training loops directly, and exposes
// Example/Batch/Shuffle for hand-rolled loops.
type LandmarkDataset struct {
	// BatchSize used by Yield.
	BatchSize int

	// ImageSize is the fixed spatial resolution samples are resized to.
	ImageSize int

	mode    Partition
	records []AnnotationRecord
	labels  *LabelMap
	stats   *CoordStats

	rand  *rand.Rand
	order []int // iteration order for Yield
	next  int   // cursor into order
}

// NewLandmarkDataset loads the given partition of the annotation table and
// freezes normalization statistics computed from that partition's
// ground-truth coordinates. By convention this constructor is used for the
// training partition; evaluation views must be built with
// NewEvaluationDataset so the training statistics are carried over.
func NewLandmarkDataset(csvPath string, mode Partition) (*LandmarkDataset, error) {
	d, err := newDataset(csvPath, mode)
	if err != nil {
		return nil, err
	}
	coords := make([]Coord, len(d.records))
	for i, rec := range d.records {
		coords[i] = rec.Coord
	}
	d.stats, err = NewCoordStats(mode, coords)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewEvaluationDataset loads the test partition normalized with the training
// partition's statistics. Requiring the statistics as an argument makes it
// structurally impossible to evaluate against freshly computed test-partition
// statistics, which would silently corrupt the millimeter-error metric.
func NewEvaluationDataset(csvPath string, trainStats *CoordStats) (*LandmarkDataset, error) {
	if trainStats == nil {
		return nil, fmt.Errorf("evaluation dataset requires the training partition's statistics")
	}
	d, err := newDataset(csvPath, Test)
	if err != nil {
		return nil, err
	}
	d.stats = trainStats
	return d, nil
}

func newDataset(csvPath string, mode Partition) (*LandmarkDataset, error) {
	records, err := LoadAnnotations(csvPath, mode)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &InsufficientDataError{Mode: mode, Count: 0, Reason: "partition is empty"}
	}

	// The label mapping is derived from the full table so both partitions
	// share one bijection.
	all, err := LoadAnnotations(csvPath, "")
	if err != nil {
		return nil, err
	}
	labels, err := NewLabelMap(all)
	if err != nil {
		return nil, err
	}

	d := &LandmarkDataset{
		BatchSize: 4,
		ImageSize: DefaultImageSize,
		mode:      mode,
		records:   records,
		labels:    labels,
		rand:      rand.New(rand.NewSource(1)),
	}
	d.order = make([]int, len(records))
	for i := range d.order {
		d.order[i] = i
	}
	return d, nil
}

// Len returns the number of samples in this partition.
func (d *LandmarkDataset) Len() int { return len(d.records) }

// Stats returns the frozen normalization statistics this view normalizes
// coordinates with.
func (d *LandmarkDataset) Stats() *CoordStats { return d.stats }

// Labels returns the shared landmark identity mapping.
func (d *LandmarkDataset) Labels() *LabelMap { return d.labels }

// Record returns the annotation record backing sample idx.
func (d *LandmarkDataset) Record(idx int) AnnotationRecord { return d.records[idx] }

// Example loads a single sample by index: the image as a flat HWC float32
// buffer, the zero-based class index, and the normalized coordinate. A
// missing or corrupt image is a hard failure reported as *SampleLoadError;
// there is no skip-and-continue policy.
func (d *LandmarkDataset) Example(idx int) (imageHWC []float32, class int, coord [3]float32, err error) {
	if idx < 0 || idx >= len(d.records) {
		return nil, 0, coord, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.records))
	}
	rec := d.records[idx]

	imageHWC, err = loadImageTensor(rec.ImagePath, d.ImageSize)
	if err != nil {
		return nil, 0, coord, &SampleLoadError{Path: rec.ImagePath, Index: idx, Err: err}
	}

	class, ok := d.labels.ClassIndex(rec.LandmarkID)
	if !ok {
		return nil, 0, coord, fmt.Errorf("sample %d has landmark id %d outside the label map", idx, rec.LandmarkID)
	}

	norm := d.stats.Normalize(rec.Coord)
	for a := 0; a < 3; a++ {
		coord[a] = float32(norm[a])
	}
	return imageHWC, class, coord, nil
}

// Batch loads the samples at the given indices into one flat SampleBatch.
func (d *LandmarkDataset) Batch(indices []int) (*SampleBatch, error) {
	b := &SampleBatch{
		Images:    make([]float32, 0, len(indices)*d.ImageSize*d.ImageSize*3),
		Classes:   make([]int32, 0, len(indices)),
		Coords:    make([]float32, 0, len(indices)*3),
		BatchSize: len(indices),
		ImageSize: d.ImageSize,
	}
	for _, idx := range indices {
		img, class, coord, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		b.Images = append(b.Images, img...)
		b.Classes = append(b.Classes, int32(class))
		b.Coords = append(b.Coords, coord[0], coord[1], coord[2])
	}
	return b, nil
}

// Shuffle reshuffles the iteration order used by Yield.
func (d *LandmarkDataset) Shuffle(seed int64) {
	d.rand.Seed(seed)
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Name identifies the dataset in gomlx training loops.
func (d *LandmarkDataset) Name() string {
	return fmt.Sprintf("landmarks/%s", d.mode)
}

// Yield returns the next batch of the epoch as gomlx tensors, following the
// gomlx train.Dataset contract: inputs is the image tensor, labels carry the
// class indices and normalized coordinates, and io.EOF signals the end of
// the epoch.
func (d *LandmarkDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.next >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	end := d.next + d.BatchSize
	if end > len(d.order) {
		end = len(d.order)
	}
	batch, err := d.Batch(d.order[d.next:end])
	if err != nil {
		return nil, nil, nil, err
	}
	d.next = end

	images, classes, coords := batch.ToGomlxTensors()
	return nil, []*tensors.Tensor{images}, []*tensors.Tensor{classes, coords}, nil
}

// Restart resets the epoch cursor.
func (d *LandmarkDataset) Restart() error {
	d.next = 0
	return nil
}

// SampleBatch stores a batch in flat contiguous buffers: images in NHWC
// layout, class indices, and normalized coordinates.
type SampleBatch struct {
	Images    []float32 // BatchSize * ImageSize * ImageSize * 3
	Classes   []int32   // BatchSize
	Coords    []float32 // BatchSize * 3
	BatchSize int
	ImageSize int
}

// ToGomlxTensors converts the flat buffers into gomlx tensors shaped
// [batch, size, size, 3], [batch, 1] and [batch, 3]. Class indices carry a
// trailing unit axis because the sparse cross-entropy loss requires labels
// with the same rank as the logits.
func (b *SampleBatch) ToGomlxTensors() (images, classes, coords *tensors.Tensor) {
	images = tensors.FromFlatDataAndDimensions(b.Images, b.BatchSize, b.ImageSize, b.ImageSize, 3)
	classes = tensors.FromFlatDataAndDimensions(b.Classes, b.BatchSize, 1)
	coords = tensors.FromFlatDataAndDimensions(b.Coords, b.BatchSize, 3)
	return images, classes, coords
}
