package datasets

import "fmt"

// DataNotFoundError reports that the annotation table (or another required
// data file) is absent. There is no retry path: missing training data cannot
// be synthesized at load time, so callers should treat this as fatal.
type DataNotFoundError struct {
	Path string
	Err  error
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("data not found at %s: %v", e.Path, e.Err)
}

func (e *DataNotFoundError) Unwrap() error { return e.Err }

// InsufficientDataError reports a partition too small (or too degenerate) to
// compute valid normalization statistics. Raised at dataset construction so a
// zero standard deviation never reaches the normalization math.
type InsufficientDataError struct {
	Mode   Partition
	Count  int
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("partition %q with %d samples cannot produce normalization statistics: %s",
		e.Mode, e.Count, e.Reason)
}

// SampleLoadError reports that a specific image referenced by the annotation
// table failed to load or decode. It carries the row index so the offending
// annotation can be found without re-running.
type SampleLoadError struct {
	Path  string
	Index int
	Err   error
}

func (e *SampleLoadError) Error() string {
	return fmt.Sprintf("failed to load sample %d from %s: %v", e.Index, e.Path, e.Err)
}

func (e *SampleLoadError) Unwrap() error { return e.Err }
