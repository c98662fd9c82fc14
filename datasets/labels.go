package datasets

import (
	"fmt"
	"sort"
)

// LabelMap is the fixed, total, order-preserving bijection between landmark
// identities (the 1-based ids in the annotation table) and zero-based class
// indices fed to the classification head. It must be built from the full
// annotation table, not a single partition, so that training and evaluation
// share one mapping.
type LabelMap struct {
	ids   []int          // class index -> landmark id, ascending
	index map[int]int    // landmark id -> class index
	names map[int]string // landmark id -> display name
}

// NewLabelMap derives the label mapping from annotation records. Landmark ids
// are ordered ascending, matching the original convention where landmark id N
// maps to class N-1 when ids are contiguous from 1.
func NewLabelMap(records []AnnotationRecord) (*LabelMap, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot build label map from empty annotation table")
	}

	names := make(map[int]string)
	for _, rec := range records {
		if name, ok := names[rec.LandmarkID]; ok && name != rec.LandmarkName {
			return nil, fmt.Errorf("landmark id %d has conflicting names %q and %q",
				rec.LandmarkID, name, rec.LandmarkName)
		}
		names[rec.LandmarkID] = rec.LandmarkName
	}

	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	index := make(map[int]int, len(ids))
	for class, id := range ids {
		index[id] = class
	}
	return &LabelMap{ids: ids, index: index, names: names}, nil
}

// NumClasses returns the size of the fixed landmark set.
func (m *LabelMap) NumClasses() int { return len(m.ids) }

// ClassIndex maps a landmark identity to its zero-based class index.
func (m *LabelMap) ClassIndex(landmarkID int) (int, bool) {
	class, ok := m.index[landmarkID]
	return class, ok
}

// LandmarkID is the inverse of ClassIndex.
func (m *LabelMap) LandmarkID(class int) (int, bool) {
	if class < 0 || class >= len(m.ids) {
		return 0, false
	}
	return m.ids[class], true
}

// Name returns the display name for a class index, or "" if unknown.
func (m *LabelMap) Name(class int) string {
	id, ok := m.LandmarkID(class)
	if !ok {
		return ""
	}
	return m.names[id]
}
