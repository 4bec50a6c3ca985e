package chunkspan

// ═══════════════════════════════════════════════════════════════════════════════
// NOT
// ═══════════════════════════════════════════════════════════════════════════════
// An include span is dropped when an exclude span lies within slop words of
// it. In the text field the two may sit in different chunks: an exclude span
// crossing the end of chunk c exists only in chunk c+1. Both are therefore
// compared in whole-document coordinates:
//
//	chunk c   (base 0):   ... include [78, 79) ...     | end 100
//	chunk c+1 (base 80):             exclude local [21, 22) → doc [101, 102)
//
//	slop 25: 79 + 25 > 101 → include dropped
//
// Exclude spans are buffered per document and released once they are too
// far behind the base of the current chunk to matter.
// ═══════════════════════════════════════════════════════════════════════════════

type excludeSpan struct {
	doc        int
	start, end int
}

type notSpans struct {
	include Spans
	exclude Spans
	slop    int
	docs    *DocNumMap

	buf       []excludeSpan
	exStarted bool
	exDone    bool
}

func newNotSpans(include, exclude Spans, slop int, docs *DocNumMap) Spans {
	if _, empty := exclude.(emptySpans); empty {
		return include
	}
	return &notSpans{include: include, exclude: exclude, slop: slop, docs: docs}
}

func (s *notSpans) Next() bool {
	for s.include.Next() {
		if !s.excluded() {
			return true
		}
	}
	return false
}

func (s *notSpans) SkipTo(chunk int) bool {
	if !s.include.SkipTo(chunk) {
		return false
	}
	if !s.excluded() {
		return true
	}
	return s.Next()
}

// excluded reports whether the current include span has an exclude span
// within slop.
func (s *notSpans) excluded() bool {
	chunk := s.include.Chunk()
	doc, base := s.locate(chunk)
	s.release(doc, base)
	s.load(doc, chunk)

	start := base + s.include.Start() - s.slop
	end := base + s.include.End() + s.slop
	for _, x := range s.buf {
		if x.doc == doc && x.start < end && start < x.end {
			return true
		}
	}
	return false
}

// locate returns the document of chunk and the whole-document position of
// the chunk's first word.
func (s *notSpans) locate(chunk int) (doc, base int) {
	if s.docs == nil {
		return chunk, 0
	}
	doc = s.docs.DocNum(chunk)
	if doc < 0 || doc == chunk {
		return chunk, 0
	}
	return doc, s.docs.Reoffset(chunk, 0)
}

// release drops buffered spans of earlier documents and spans ending more
// than slop words before base.
func (s *notSpans) release(doc, base int) {
	kept := s.buf[:0]
	for _, x := range s.buf {
		if x.doc > doc || (x.doc == doc && x.end+s.slop > base) {
			kept = append(kept, x)
		}
	}
	s.buf = kept
}

// load buffers the exclude spans of doc up to chunk + 1.
func (s *notSpans) load(doc, chunk int) {
	if s.exDone {
		return
	}
	first := chunk
	if s.docs != nil && doc != chunk {
		first = s.docs.FirstChunk(doc)
	}
	if !s.exStarted || s.exclude.Chunk() < first {
		s.exStarted = true
		if !s.exclude.SkipTo(first) {
			s.exDone = true
			return
		}
	}
	for s.exclude.Chunk() <= chunk+1 {
		xdoc, base := s.locate(s.exclude.Chunk())
		s.buf = append(s.buf, excludeSpan{doc: xdoc, start: base + s.exclude.Start(), end: base + s.exclude.End()})
		if !s.exclude.Next() {
			s.exDone = true
			return
		}
	}
}

func (s *notSpans) Chunk() int     { return s.include.Chunk() }
func (s *notSpans) Start() int     { return s.include.Start() }
func (s *notSpans) End() int       { return s.include.End() }
func (s *notSpans) Score() float64 { return s.include.Score() }

func (s *notSpans) Err() error {
	if err := s.include.Err(); err != nil {
		return err
	}
	return s.exclude.Err()
}

func (s *notSpans) chunkCoord(chunk int) (int, int) {
	if c, ok := s.include.(coordSpans); ok {
		return c.chunkCoord(chunk)
	}
	return 1, 1
}
