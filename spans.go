package chunkspan

import (
	"container/heap"
	"math"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SPAN STREAMS
// ═══════════════════════════════════════════════════════════════════════════════
// Every evaluator produces a Spans: a lazily advancing stream of chunk-local
// matches ordered by (chunk, start, end).
//
//	Term "whale":   (c3, 4, 5) (c3, 17, 18) (c9, 0, 1) ...
//	Near whale/2 white:
//	                (c3, 2, 5) ...
//
// A stream starts before its first span. Next moves to the following span;
// SkipTo moves to the first span whose chunk is >= target and leaves the
// stream where it is when it already satisfies that. Once either returns
// false the stream is exhausted, and Err tells an error from a clean end.
// ═══════════════════════════════════════════════════════════════════════════════

// Spans is an ordered stream of span matches.
type Spans interface {
	Next() bool
	SkipTo(chunk int) bool
	Chunk() int
	Start() int
	End() int
	Score() float64
	Err() error
}

// coordSpans is implemented by streams that know how many of their clauses
// matched a chunk.
type coordSpans interface {
	chunkCoord(chunk int) (overlap, max int)
}

// spanHit is a buffered match within one chunk.
type spanHit struct {
	start, end int
	score      float64
}

func (h spanHit) overlaps(o spanHit) bool {
	return h.start < o.end && o.start < h.end
}

// ───────────────────────────────────────────────────────────────────────────────
// Term spans
// ───────────────────────────────────────────────────────────────────────────────

// termSpans streams the occurrences of one term. Bi-gram terms cover two
// word positions.
type termSpans struct {
	term    Term
	it      PositionIterator
	width   int
	weight  float64
	work    *workTracker
	pos     Position
	started bool
	done    bool
	err     error
}

func newTermSpans(t Term, it PositionIterator, weight float64, work *workTracker) *termSpans {
	width := 1
	if IsBigram(t.Text) {
		width = 2
	}
	return &termSpans{term: t, it: it, width: width, weight: weight, work: work}
}

func (s *termSpans) Next() bool {
	if s.done {
		return false
	}
	if err := s.work.tick(1); err != nil {
		return s.fail(err)
	}
	s.started = true
	if !s.it.Next() {
		s.done = true
		return false
	}
	s.pos = s.it.Position()
	return true
}

func (s *termSpans) SkipTo(chunk int) bool {
	if s.done {
		return false
	}
	if s.started && s.pos.Chunk >= chunk {
		return true
	}
	if err := s.work.tick(1); err != nil {
		return s.fail(err)
	}
	s.started = true
	if !s.it.SkipTo(Position{Chunk: chunk, Offset: math.MinInt}) {
		s.done = true
		return false
	}
	s.pos = s.it.Position()
	return true
}

func (s *termSpans) fail(err error) bool {
	s.err = err
	s.done = true
	return false
}

func (s *termSpans) Chunk() int     { return s.pos.Chunk }
func (s *termSpans) Start() int     { return s.pos.Offset }
func (s *termSpans) End() int       { return s.pos.Offset + s.width }
func (s *termSpans) Score() float64 { return s.weight }
func (s *termSpans) Err() error     { return s.err }
func (s *termSpans) String() string { return s.term.Field + ":" + s.term.Text }

// emptySpans never matches.
type emptySpans struct{}

func (emptySpans) Next() bool      { return false }
func (emptySpans) SkipTo(int) bool { return false }
func (emptySpans) Chunk() int      { return math.MaxInt }
func (emptySpans) Start() int      { return 0 }
func (emptySpans) End() int        { return 0 }
func (emptySpans) Score() float64  { return 0 }
func (emptySpans) Err() error      { return nil }

// ───────────────────────────────────────────────────────────────────────────────
// Or spans
// ───────────────────────────────────────────────────────────────────────────────

type orCell struct {
	spans  Spans
	clause int
}

type spanQueue []orCell

func (q spanQueue) Len() int { return len(q) }
func (q spanQueue) Less(i, j int) bool {
	a, b := q[i].spans, q[j].spans
	if a.Chunk() != b.Chunk() {
		return a.Chunk() < b.Chunk()
	}
	if a.Start() != b.Start() {
		return a.Start() < b.Start()
	}
	return a.End() < b.End()
}
func (q spanQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spanQueue) Push(x any)   { *q = append(*q, x.(orCell)) }
func (q *spanQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

// orSpans merges its clauses in span order and tracks, per chunk, how many
// distinct clauses matched.
type orSpans struct {
	clauses []Spans
	queue   spanQueue
	started bool

	coordChunk int
	matched    []bool
	count      int
	lastChunk  int
	lastCount  int
}

func newOrSpans(clauses []Spans) Spans {
	switch len(clauses) {
	case 0:
		return emptySpans{}
	case 1:
		return clauses[0]
	}
	return &orSpans{
		clauses:    clauses,
		matched:    make([]bool, len(clauses)),
		coordChunk: -1,
		lastChunk:  -1,
	}
}

func (s *orSpans) Next() bool {
	if !s.started {
		s.started = true
		for i, c := range s.clauses {
			if c.Next() {
				s.queue = append(s.queue, orCell{spans: c, clause: i})
			}
		}
		heap.Init(&s.queue)
		return s.settle()
	}
	if len(s.queue) == 0 {
		return false
	}
	if s.queue[0].spans.Next() {
		heap.Fix(&s.queue, 0)
	} else {
		heap.Pop(&s.queue)
	}
	return s.settle()
}

func (s *orSpans) SkipTo(chunk int) bool {
	if !s.started {
		s.started = true
		for i, c := range s.clauses {
			if c.SkipTo(chunk) {
				s.queue = append(s.queue, orCell{spans: c, clause: i})
			}
		}
		heap.Init(&s.queue)
		return s.settle()
	}
	for len(s.queue) > 0 && s.queue[0].spans.Chunk() < chunk {
		if s.queue[0].spans.SkipTo(chunk) {
			heap.Fix(&s.queue, 0)
		} else {
			heap.Pop(&s.queue)
		}
	}
	return s.settle()
}

// settle records the clause now at the head of the queue.
func (s *orSpans) settle() bool {
	if len(s.queue) == 0 {
		return false
	}
	top := s.queue[0]
	if c := top.spans.Chunk(); c != s.coordChunk {
		s.lastChunk, s.lastCount = s.coordChunk, s.count
		s.coordChunk, s.count = c, 0
		clear(s.matched)
	}
	if !s.matched[top.clause] {
		s.matched[top.clause] = true
		s.count++
	}
	return true
}

func (s *orSpans) chunkCoord(chunk int) (int, int) {
	switch chunk {
	case s.coordChunk:
		return s.count, len(s.clauses)
	case s.lastChunk:
		return s.lastCount, len(s.clauses)
	}
	return 1, len(s.clauses)
}

func (s *orSpans) Chunk() int     { return s.queue[0].spans.Chunk() }
func (s *orSpans) Start() int     { return s.queue[0].spans.Start() }
func (s *orSpans) End() int       { return s.queue[0].spans.End() }
func (s *orSpans) Score() float64 { return s.queue[0].spans.Score() }

func (s *orSpans) Err() error {
	for _, c := range s.clauses {
		if err := c.Err(); err != nil {
			return err
		}
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Buffered spans
// ───────────────────────────────────────────────────────────────────────────────

// chunkFiller computes every match of the first chunk >= target that has
// any. It returns false when no such chunk exists.
type chunkFiller interface {
	fill(target int) (chunk int, hits []spanHit, ok bool)
	err() error
}

// bufferedSpans turns a per-chunk match computation into a Spans.
type bufferedSpans struct {
	filler  chunkFiller
	chunk   int
	hits    []spanHit
	i       int
	started bool
	done    bool
}

func newBufferedSpans(f chunkFiller) *bufferedSpans {
	return &bufferedSpans{filler: f}
}

func (s *bufferedSpans) Next() bool {
	if s.done {
		return false
	}
	if s.started && s.i+1 < len(s.hits) {
		s.i++
		return true
	}
	target := 0
	if s.started {
		target = s.chunk + 1
	}
	return s.load(target)
}

func (s *bufferedSpans) SkipTo(chunk int) bool {
	if s.done {
		return false
	}
	if s.started && s.chunk >= chunk {
		return true
	}
	return s.load(chunk)
}

func (s *bufferedSpans) load(target int) bool {
	s.started = true
	for {
		chunk, hits, ok := s.filler.fill(target)
		if !ok {
			s.done = true
			s.hits = nil
			return false
		}
		if len(hits) > 0 {
			s.chunk, s.hits, s.i = chunk, hits, 0
			return true
		}
		target = chunk + 1
	}
}

func (s *bufferedSpans) Chunk() int     { return s.chunk }
func (s *bufferedSpans) Start() int     { return s.hits[s.i].start }
func (s *bufferedSpans) End() int       { return s.hits[s.i].end }
func (s *bufferedSpans) Score() float64 { return s.hits[s.i].score }
func (s *bufferedSpans) Err() error     { return s.filler.err() }

func (s *bufferedSpans) chunkCoord(chunk int) (int, int) {
	if c, ok := s.filler.(coordSpans); ok {
		return c.chunkCoord(chunk)
	}
	return 1, 1
}

// collectChunk drains the spans of s within chunk into a slice; s is left
// on the first span past chunk or exhausted.
func collectChunk(s Spans, chunk int) (hits []spanHit, more bool) {
	for s.Chunk() == chunk {
		hits = append(hits, spanHit{start: s.Start(), end: s.End(), score: s.Score()})
		if !s.Next() {
			return hits, false
		}
	}
	return hits, true
}

// firstErr returns the first non-nil error of streams.
func firstErr(streams []Spans) error {
	for _, s := range streams {
		if s == nil {
			continue
		}
		if err := s.Err(); err != nil {
			return err
		}
	}
	return nil
}
