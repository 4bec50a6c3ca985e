package chunkspan

import (
	"strconv"
	"strings"
)

// SortData holds the first value of one metadata field for every live
// document, for sorting hits by that field. Values that all parse as numbers
// compare numerically.
type SortData struct {
	field   string
	values  map[int]string
	numbers map[int]float64
	numeric bool
}

// BuildSortData reads field from the doc-info chunk of every live document.
func BuildSortData(r IndexReader, docs *DocNumMap, field string) *SortData {
	s := &SortData{
		field:   field,
		values:  make(map[int]string),
		numbers: make(map[int]float64),
		numeric: true,
	}
	for _, doc := range docs.Docs() {
		if r.IsDeleted(doc) {
			continue
		}
		raw, ok := r.FieldValue(doc, field)
		if !ok {
			continue
		}
		values := splitValues(raw)
		if len(values) == 0 {
			continue
		}
		v := strings.TrimSpace(values[0])
		s.values[doc] = v
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.numbers[doc] = f
		} else {
			s.numeric = false
		}
	}
	return s
}

// Field is the field the data was read from.
func (s *SortData) Field() string { return s.field }

// Value returns the sort value of doc.
func (s *SortData) Value(doc int) (string, bool) {
	v, ok := s.values[doc]
	return v, ok
}

// compare orders two documents by value. Documents without a value sort
// after every document with one, in either direction.
func (s *SortData) compare(a, b int, descending bool) int {
	va, okA := s.values[a]
	vb, okB := s.values[b]
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	c := 0
	if s.numeric {
		switch fa, fb := s.numbers[a], s.numbers[b]; {
		case fa < fb:
			c = -1
		case fa > fb:
			c = 1
		}
	} else {
		c = strings.Compare(va, vb)
	}
	if descending {
		c = -c
	}
	return c
}
