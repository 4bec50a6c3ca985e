package chunkspan

// Reserved field names written by the Indexer and read by the engine.
const (
	FieldText        = "text"
	FieldDocInfo     = "docInfo"
	FieldKey         = "key"
	FieldSectionType = "sectionType"
)

// storedSectionsField holds the section type of each node of a text chunk.
// It is stored, not indexed.
const storedSectionsField = "sections"

// docInfoMarker is the single term of FieldDocInfo; its postings enumerate
// the doc-info chunks, which double as logical document ids.
const docInfoMarker = "1"

// Term is a field-qualified index term.
type Term struct {
	Field string
	Text  string
}

// PositionIterator walks a term's occurrences in ascending (chunk, offset)
// order. It starts before the first occurrence.
type PositionIterator interface {
	Next() bool
	// SkipTo moves to the first occurrence >= target. It never moves backwards.
	SkipTo(target Position) bool
	Position() Position
}

// TermIterator walks the terms of one field in ascending order. It starts
// before the first term.
type TermIterator interface {
	Next() bool
	Term() Term
	DocFreq() int
}

// IndexReader is everything the engine needs from the underlying index.
// Implementations must be safe for concurrent readers.
type IndexReader interface {
	// TermPositions returns an iterator over the occurrences of t. An absent
	// term yields an empty iterator, not an error.
	TermPositions(t Term) (PositionIterator, error)
	// Terms enumerates the terms of field starting at the first term >= from.
	Terms(field, from string) TermIterator
	// DocFreq is the number of chunks containing t.
	DocFreq(t Term) int
	// MaxChunk is one past the highest chunk id.
	MaxChunk() int
	// DocCount is the number of live logical documents.
	DocCount() int
	IsDeleted(chunk int) bool
	FieldValue(chunk int, field string) (string, bool)
	// FieldLength is the number of indexed tokens of field in chunk.
	FieldLength(chunk int, field string) int
	// Generation changes whenever the visible index content changes.
	Generation() uint64
}

type emptyPositions struct{}

func (emptyPositions) Next() bool           { return false }
func (emptyPositions) SkipTo(Position) bool { return false }
func (emptyPositions) Position() Position   { return EOF }
