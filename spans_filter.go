package chunkspan

import (
	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHUNK AND DOCUMENT FILTERS
// ═══════════════════════════════════════════════════════════════════════════════
// Filters intersect a span stream with a precomputed set without looking at
// the spans they skip. When the current chunk is rejected the filter asks
// for the next acceptable chunk and skips the inner stream straight to it:
//
//	allowed docs {9, 42}   DocNumMap [... 9, 17, 42 ...]
//	span in chunk 12 → doc 17 rejected → SkipTo(FirstChunk(42) = 18)
// ═══════════════════════════════════════════════════════════════════════════════

// chunkGate decides whether spans in chunk pass. When they do not, next is
// the smallest chunk that might, or -1 when none will.
type chunkGate func(chunk int) (ok bool, next int)

type filterSpans struct {
	inner Spans
	gate  chunkGate
}

func newFilterSpans(inner Spans, gate chunkGate) Spans {
	return &filterSpans{inner: inner, gate: gate}
}

func (s *filterSpans) Next() bool {
	if !s.inner.Next() {
		return false
	}
	return s.settle()
}

func (s *filterSpans) SkipTo(chunk int) bool {
	if !s.inner.SkipTo(chunk) {
		return false
	}
	return s.settle()
}

func (s *filterSpans) settle() bool {
	for {
		ok, next := s.gate(s.inner.Chunk())
		if ok {
			return true
		}
		if next < 0 || !s.inner.SkipTo(next) {
			return false
		}
	}
}

func (s *filterSpans) Chunk() int     { return s.inner.Chunk() }
func (s *filterSpans) Start() int     { return s.inner.Start() }
func (s *filterSpans) End() int       { return s.inner.End() }
func (s *filterSpans) Score() float64 { return s.inner.Score() }
func (s *filterSpans) Err() error     { return s.inner.Err() }

func (s *filterSpans) chunkCoord(chunk int) (int, int) {
	if c, ok := s.inner.(coordSpans); ok {
		return c.chunkCoord(chunk)
	}
	return 1, 1
}

// chunkSetGate passes chunks in allowed.
func chunkSetGate(allowed *roaring.Bitmap) chunkGate {
	return func(chunk int) (bool, int) {
		if allowed.Contains(uint32(chunk)) {
			return true, 0
		}
		it := allowed.Iterator()
		it.AdvanceIfNeeded(uint32(chunk))
		if !it.HasNext() {
			return false, -1
		}
		return false, int(it.Next())
	}
}

// docSetGate passes chunks whose document is in docs, or not in docs when
// exclude is set.
func docSetGate(docs *roaring.Bitmap, exclude bool, m *DocNumMap) chunkGate {
	return func(chunk int) (bool, int) {
		doc := m.DocNum(chunk)
		if doc < 0 {
			return false, -1
		}
		if docs.Contains(uint32(doc)) != exclude {
			return true, 0
		}
		if exclude {
			return false, doc + 1
		}
		it := docs.Iterator()
		it.AdvanceIfNeeded(uint32(doc + 1))
		for it.HasNext() {
			next := int(it.Next())
			if m.IsDoc(next) {
				return false, m.FirstChunk(next)
			}
		}
		return false, -1
	}
}

// liveGate drops chunks the reader reports deleted.
func liveGate(r IndexReader) chunkGate {
	return func(chunk int) (bool, int) {
		if !r.IsDeleted(chunk) {
			return true, 0
		}
		return false, chunk + 1
	}
}

// chunkSet returns the chunks containing any of terms.
func chunkSet(r IndexReader, terms []Term) (*roaring.Bitmap, error) {
	type bitmapReader interface {
		ChunksContaining(Term) *roaring.Bitmap
	}
	out := roaring.New()
	for _, t := range terms {
		if br, ok := r.(bitmapReader); ok {
			if bm := br.ChunksContaining(t); bm != nil {
				out.Or(bm)
			}
			continue
		}
		it, err := r.TermPositions(t)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			out.Add(uint32(it.Position().Chunk))
		}
	}
	return out, nil
}

// docsOf drains s and returns the documents it matched in.
func docsOf(s Spans, m *DocNumMap) (*roaring.Bitmap, error) {
	docs := roaring.New()
	for ok := s.Next(); ok; {
		doc := m.DocNum(s.Chunk())
		if doc < 0 {
			break
		}
		docs.Add(uint32(doc))
		// Nothing more to learn from this document.
		ok = s.SkipTo(doc + 1)
	}
	return docs, s.Err()
}
