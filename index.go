package chunkspan

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY CHUNKED INDEX
// ═══════════════════════════════════════════════════════════════════════════════
// MemoryIndex is the reference IndexReader. It stores chunks, not documents:
//
//	MemoryIndex
//	├── Postings:     map[Term]*SkipList        (POSITION-LEVEL)
//	│   ├── text:"quick" → [c0:3, c0:41, c7:2, ...]
//	│   └── title:"fox"  → [c9:1, ...]
//	├── ChunkBitmaps: map[Term]*roaring.Bitmap  (CHUNK-LEVEL)
//	│   └── text:"quick" → {0, 7, ...}
//	├── stored / lengths per chunk
//	└── deleted:      roaring.Bitmap of chunk ids
//
// The bitmaps answer "which chunks contain t" and DocFreq in O(1); the skip
// lists answer position questions for span evaluation.
//
// Writes take the mutex and bump the generation on Commit. Readers do not
// lock, so an index must not be written while queries run against it; build
// a new one and swap it into the Searcher instead.
// ═══════════════════════════════════════════════════════════════════════════════
type MemoryIndex struct {
	mu sync.Mutex

	Postings     map[Term]*SkipList
	ChunkBitmaps map[Term]*roaring.Bitmap

	fieldTerms map[string][]string // sorted on Commit
	stored     []map[string]string
	lengths    []map[string]int
	deleted    *roaring.Bitmap
	docs       int
	dirty      bool

	generation atomic.Uint64
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		Postings:     make(map[Term]*SkipList),
		ChunkBitmaps: make(map[Term]*roaring.Bitmap),
		fieldTerms:   make(map[string][]string),
		deleted:      roaring.New(),
	}
}

// indexedToken is one term occurrence to be added to a chunk.
type indexedToken struct {
	field string
	term  string
	pos   int
}

// chunkData is a fully analysed chunk waiting to be appended.
type chunkData struct {
	stored  map[string]string
	tokens  []indexedToken
	lengths map[string]int
	docInfo bool
}

// appendChunk adds one chunk and returns its id.
func (idx *MemoryIndex) appendChunk(c chunkData) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chunk := len(idx.stored)
	idx.stored = append(idx.stored, c.stored)
	idx.lengths = append(idx.lengths, c.lengths)
	for _, tok := range c.tokens {
		idx.indexToken(Term{Field: tok.field, Text: tok.term}, chunk, tok.pos)
	}
	if c.docInfo {
		idx.indexToken(Term{Field: FieldDocInfo, Text: docInfoMarker}, chunk, 0)
		idx.docs++
	}
	idx.dirty = true
	return chunk
}

func (idx *MemoryIndex) indexToken(t Term, chunk, pos int) {
	bitmap := idx.ChunkBitmaps[t]
	if bitmap == nil {
		bitmap = roaring.New()
		idx.ChunkBitmaps[t] = bitmap
		idx.fieldTerms[t.Field] = append(idx.fieldTerms[t.Field], t.Text)
	}
	bitmap.Add(uint32(chunk))

	list := idx.Postings[t]
	if list == nil {
		list = NewSkipList()
		idx.Postings[t] = list
	}
	list.Insert(Position{Chunk: chunk, Offset: pos})
}

// deleteChunks marks [first, last] deleted.
func (idx *MemoryIndex) deleteChunks(first, last int, docInfo bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleted.AddRange(uint64(first), uint64(last)+1)
	if docInfo {
		idx.docs--
	}
	idx.dirty = true
}

// Commit makes pending writes visible and advances the generation.
func (idx *MemoryIndex) Commit() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return
	}
	for field, terms := range idx.fieldTerms {
		sort.Strings(terms)
		idx.fieldTerms[field] = terms
	}
	idx.dirty = false
	gen := idx.generation.Add(1)
	slog.Debug("index committed",
		slog.Uint64("generation", gen),
		slog.Int("chunks", len(idx.stored)),
		slog.Int("docs", idx.docs))
}

// TermPositions implements IndexReader.
func (idx *MemoryIndex) TermPositions(t Term) (PositionIterator, error) {
	list, ok := idx.Postings[t]
	if !ok {
		return emptyPositions{}, nil
	}
	return list.iterator(), nil
}

// Terms implements IndexReader.
func (idx *MemoryIndex) Terms(field, from string) TermIterator {
	terms := idx.fieldTerms[field]
	start := sort.SearchStrings(terms, from)
	return &sliceTermIterator{idx: idx, field: field, terms: terms, pos: start - 1}
}

// DocFreq implements IndexReader.
func (idx *MemoryIndex) DocFreq(t Term) int {
	if bitmap, ok := idx.ChunkBitmaps[t]; ok {
		return int(bitmap.GetCardinality())
	}
	return 0
}

// MaxChunk implements IndexReader.
func (idx *MemoryIndex) MaxChunk() int { return len(idx.stored) }

// DocCount implements IndexReader.
func (idx *MemoryIndex) DocCount() int { return idx.docs }

// IsDeleted implements IndexReader.
func (idx *MemoryIndex) IsDeleted(chunk int) bool {
	return idx.deleted.Contains(uint32(chunk))
}

// FieldValue implements IndexReader.
func (idx *MemoryIndex) FieldValue(chunk int, field string) (string, bool) {
	if chunk < 0 || chunk >= len(idx.stored) {
		return "", false
	}
	v, ok := idx.stored[chunk][field]
	return v, ok
}

// StoredFields returns the sorted names of the fields stored for chunk.
func (idx *MemoryIndex) StoredFields(chunk int) []string {
	if chunk < 0 || chunk >= len(idx.stored) {
		return nil
	}
	return sortedKeys(idx.stored[chunk])
}

// FieldLength implements IndexReader.
func (idx *MemoryIndex) FieldLength(chunk int, field string) int {
	if chunk < 0 || chunk >= len(idx.lengths) {
		return 0
	}
	return idx.lengths[chunk][field]
}

// Generation implements IndexReader.
func (idx *MemoryIndex) Generation() uint64 { return idx.generation.Load() }

// ChunksContaining returns the chunk bitmap of t (nil when absent). The
// bitmap is shared; callers must not modify it.
func (idx *MemoryIndex) ChunksContaining(t Term) *roaring.Bitmap {
	return idx.ChunkBitmaps[t]
}

type sliceTermIterator struct {
	idx   *MemoryIndex
	field string
	terms []string
	pos   int
}

func (it *sliceTermIterator) Next() bool {
	it.pos++
	return it.pos < len(it.terms)
}

func (it *sliceTermIterator) Term() Term {
	return Term{Field: it.field, Text: it.terms[it.pos]}
}

func (it *sliceTermIterator) DocFreq() int {
	return it.idx.DocFreq(it.Term())
}
