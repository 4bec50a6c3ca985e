package chunkspan

import (
	"fmt"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DOCUMENT NUMBER MAP
// ═══════════════════════════════════════════════════════════════════════════════
// Chunks of one document are contiguous and the doc-info chunk comes last, so
// the sorted list of doc-info chunk ids is enough to stitch chunks back into
// documents:
//
//	chunk ids: 0 1 2 [3] 4 5 [6] [7] 8 [9]
//	docs:      [3, 6, 7, 9]
//
//	DocNum(4)     = 6   smallest doc id >= 4
//	FirstChunk(6) = 4   previous doc id + 1
//	LastChunk(6)  = 5   doc id - 1 (the last text chunk)
//
// Document 7 has no text chunks; FirstChunk(7) = 7 > LastChunk(7) = 6.
// ═══════════════════════════════════════════════════════════════════════════════

// DocNumMap maps chunk ids to logical document ids and back.
type DocNumMap struct {
	docs         []int
	chunkSize    int
	chunkOverlap int
}

// BuildDocNumMap reads the doc-info postings of r.
func BuildDocNumMap(r IndexReader, cfg IndexConfig) (*DocNumMap, error) {
	it, err := r.TermPositions(Term{Field: FieldDocInfo, Text: docInfoMarker})
	if err != nil {
		return nil, err
	}
	m := &DocNumMap{chunkSize: cfg.ChunkSize, chunkOverlap: cfg.ChunkOverlap}
	for it.Next() {
		doc := it.Position().Chunk
		if n := len(m.docs); n > 0 && doc <= m.docs[n-1] {
			return nil, corruption("doc-info chunks out of order: %d after %d", doc, m.docs[n-1])
		}
		m.docs = append(m.docs, doc)
	}
	return m, nil
}

// NewDocNumMap builds a map from an explicit ascending list of doc ids.
func NewDocNumMap(docs []int, cfg IndexConfig) (*DocNumMap, error) {
	for i := 1; i < len(docs); i++ {
		if docs[i] <= docs[i-1] {
			return nil, corruption("doc ids out of order: %d after %d", docs[i], docs[i-1])
		}
	}
	return &DocNumMap{docs: append([]int(nil), docs...), chunkSize: cfg.ChunkSize, chunkOverlap: cfg.ChunkOverlap}, nil
}

// Len is the number of documents, deleted ones included.
func (m *DocNumMap) Len() int { return len(m.docs) }

// Step is the distance between the starts of adjacent chunks.
func (m *DocNumMap) Step() int { return m.chunkSize - m.chunkOverlap }

// ChunkOverlap is the number of words shared by adjacent chunks.
func (m *DocNumMap) ChunkOverlap() int { return m.chunkOverlap }

// DocNum returns the document owning chunk, or -1 past the last document.
func (m *DocNumMap) DocNum(chunk int) int {
	i := sort.SearchInts(m.docs, chunk)
	if i == len(m.docs) {
		return -1
	}
	return m.docs[i]
}

// IsDoc reports whether doc is a doc-info chunk id.
func (m *DocNumMap) IsDoc(doc int) bool {
	i := sort.SearchInts(m.docs, doc)
	return i < len(m.docs) && m.docs[i] == doc
}

// FirstChunk returns the first text chunk of doc.
func (m *DocNumMap) FirstChunk(doc int) int {
	i := m.mustFind(doc)
	if i == 0 {
		return 0
	}
	return m.docs[i-1] + 1
}

// LastChunk returns the last text chunk of doc.
func (m *DocNumMap) LastChunk(doc int) int {
	m.mustFind(doc)
	return doc - 1
}

// NextDoc returns the first document id >= doc, or -1.
func (m *DocNumMap) NextDoc(doc int) int { return m.DocNum(doc) }

// Docs returns the document ids in ascending order. The slice is shared.
func (m *DocNumMap) Docs() []int { return m.docs }

func (m *DocNumMap) mustFind(doc int) int {
	i := sort.SearchInts(m.docs, doc)
	if i == len(m.docs) || m.docs[i] != doc {
		failCorrupt("chunk %d is not a document id", doc)
	}
	return i
}

// Reoffset converts a chunk-local word position to whole-document
// coordinates. Doc-info chunks have their own coordinate space and are
// returned unchanged.
func (m *DocNumMap) Reoffset(chunk, local int) int {
	doc := m.DocNum(chunk)
	if doc < 0 || doc == chunk {
		return local
	}
	return (chunk-m.FirstChunk(doc))*m.Step() + local
}

// ChunkOf returns the text chunk of doc in which the whole-document position
// pos starts. Positions inside an overlap belong to the later chunk.
func (m *DocNumMap) ChunkOf(doc, pos int) int {
	first, last := m.FirstChunk(doc), m.LastChunk(doc)
	if last < first {
		return doc
	}
	c := first + pos/m.Step()
	if c > last {
		c = last
	}
	return c
}

func (m *DocNumMap) String() string {
	return fmt.Sprintf("DocNumMap{docs: %d, size: %d, overlap: %d}", len(m.docs), m.chunkSize, m.chunkOverlap)
}
