package chunkspan

import (
	"math"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROXIMITY MATCHING
// ═══════════════════════════════════════════════════════════════════════════════
// NEAR works one chunk at a time. Its clauses are merge-joined until they all
// sit on one chunk, every clause span of that chunk is collected, and the
// matches are computed from those lists.
//
// SLOP is the number of word positions a match needs beyond its clauses being
// adjacent and in query order. In order it is the count of words between
// consecutive clauses. For an unordered NEAR the clause spans are first laid
// out by position:
//
//	slop = words not covered by any clause within [start, end)
//	     + 1 for each clause that starts before its predecessor in the query
//
// An out-of-order pair always costs one more than the same pair in order, so
// "white whale" beats "whale white" at equal distance. A clause that falls
// inside a match never makes it more expensive.
//
// Positions count words, so clauses 3 apart have 2 words between them and
// need slop 2, not 3.
//
// EXAMPLE (slop = 2):
// -------------------
//
//	alpha@5 beta@7   1 word between  → match [5, 8), score × sloppyFreq(1)
//	alpha@5 beta@8   2 words between → match [5, 9), score × sloppyFreq(2)
//	alpha@5 beta@9   3 words between → no match
//	beta@5  alpha@7  reversed, 1 + 1 = 2 → match unless inOrder
//
//	alpha@0 gamma@3 beta@6, query (alpha beta gamma), unordered:
//	4 uncovered words + gamma before beta = 5, the same as (alpha beta)
// ═══════════════════════════════════════════════════════════════════════════════

// unorderedSlop is the cost of a chain of clause spans given in query order.
func unorderedSlop(chain []spanHit) int {
	laid := append([]spanHit(nil), chain...)
	sort.Slice(laid, func(i, j int) bool {
		if laid[i].start != laid[j].start {
			return laid[i].start < laid[j].start
		}
		return laid[i].end < laid[j].end
	})
	slop, reach := 0, laid[0].end
	for _, h := range laid[1:] {
		slop += max(0, h.start-reach)
		reach = max(reach, h.end)
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].start < chain[i-1].start {
			slop++
		}
	}
	return slop
}

// nearFiller computes NEAR matches chunk by chunk.
type nearFiller struct {
	clauses []Spans
	slop    int
	inOrder bool
	sim     Similarity
	work    *workTracker
	started bool
	failed  error
}

func newNearSpans(clauses []Spans, slop int, inOrder bool, sim Similarity, work *workTracker) Spans {
	if len(clauses) == 0 {
		return emptySpans{}
	}
	return newBufferedSpans(&nearFiller{clauses: clauses, slop: slop, inOrder: inOrder, sim: sim, work: work})
}

func (f *nearFiller) err() error {
	if f.failed != nil {
		return f.failed
	}
	return firstErr(f.clauses)
}

func (f *nearFiller) fill(target int) (int, []spanHit, bool) {
	chunk, ok := alignClauses(f.clauses, target)
	if !ok {
		return 0, nil, false
	}
	lists := make([][]spanHit, len(f.clauses))
	for i, c := range f.clauses {
		lists[i], _ = collectChunk(c, chunk)
	}
	if err := f.work.tick(int64(len(lists))); err != nil {
		f.failed = err
		return 0, nil, false
	}
	if f.inOrder {
		return chunk, f.ordered(lists), true
	}
	return chunk, f.unordered(lists), true
}

// alignClauses advances every clause to the first chunk >= target that all
// of them share.
func alignClauses(clauses []Spans, target int) (int, bool) {
	chunk := target
	for {
		aligned := true
		for _, c := range clauses {
			if !c.SkipTo(chunk) {
				return 0, false
			}
			if c.Chunk() > chunk {
				chunk = c.Chunk()
				aligned = false
			}
		}
		if aligned {
			return chunk, true
		}
	}
}

// ordered finds, for each span of the first clause, the tightest in-order
// chain of the remaining clauses starting there.
func (f *nearFiller) ordered(lists [][]spanHit) []spanHit {
	var out []spanHit
	n := len(lists)
	chain := make([]spanHit, n)
	for _, first := range lists[0] {
		chain[0] = first
		complete := true
		for i := 1; i < n; i++ {
			next, ok := firstAtOrAfter(lists[i], chain[i-1].end)
			if !ok {
				complete = false
				break
			}
			chain[i] = next
		}
		if !complete {
			continue
		}
		// Pull middle clauses as late as the following clause allows.
		for i := n - 2; i >= 1; i-- {
			if later, ok := lastEndingBy(lists[i], chain[i-1].end, chain[i+1].start); ok {
				chain[i] = later
			}
		}
		slop := 0
		for i := 1; i < n; i++ {
			slop += chain[i].start - chain[i-1].end
		}
		if slop <= f.slop {
			out = append(out, f.match(chain, slop))
		}
	}
	return normalizeHits(out)
}

// unordered anchors a candidate match on every clause span in turn and picks
// for each other clause its first span starting at or after the anchor.
func (f *nearFiller) unordered(lists [][]spanHit) []spanHit {
	var out []spanHit
	n := len(lists)
	chain := make([]spanHit, n)
	for k := range lists {
		for _, anchor := range lists[k] {
			complete := true
			for j := range lists {
				if j == k {
					chain[j] = anchor
					continue
				}
				h, ok := f.pickAfter(lists[j], anchor, chain[:j])
				if !ok {
					complete = false
					break
				}
				chain[j] = h
			}
			if !complete {
				continue
			}
			if slop := unorderedSlop(chain); slop <= f.slop {
				out = append(out, f.match(chain, slop))
			}
		}
	}
	return normalizeHits(out)
}

// pickAfter returns the first span of list starting at or after anchor that
// is not already used by an earlier clause.
func (f *nearFiller) pickAfter(list []spanHit, anchor spanHit, used []spanHit) (spanHit, bool) {
	i := sort.Search(len(list), func(i int) bool { return list[i].start >= anchor.start })
	for ; i < len(list); i++ {
		h := list[i]
		if h.start == anchor.start && h.end == anchor.end {
			continue
		}
		taken := false
		for _, u := range used {
			if u.start == h.start && u.end == h.end {
				taken = true
				break
			}
		}
		if !taken {
			return h, true
		}
	}
	return spanHit{}, false
}

func (f *nearFiller) match(chain []spanHit, slop int) spanHit {
	start, end, sum := math.MaxInt, math.MinInt, 0.0
	for _, h := range chain {
		start = min(start, h.start)
		end = max(end, h.end)
		sum += h.score
	}
	return spanHit{start: start, end: end, score: sum * f.sim.SloppyFreq(slop)}
}

func firstAtOrAfter(list []spanHit, pos int) (spanHit, bool) {
	i := sort.Search(len(list), func(i int) bool { return list[i].start >= pos })
	if i == len(list) {
		return spanHit{}, false
	}
	return list[i], true
}

// lastEndingBy returns the latest span starting at or after from and ending
// at or before by.
func lastEndingBy(list []spanHit, from, by int) (spanHit, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		h := list[i]
		if h.start >= from && h.end <= by {
			return h, true
		}
	}
	return spanHit{}, false
}

// normalizeHits sorts hits by (start, end) and keeps the best score for
// identical intervals.
func normalizeHits(hits []spanHit) []spanHit {
	if len(hits) < 2 {
		return hits
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end < hits[j].end
	})
	out := hits[:1]
	for _, h := range hits[1:] {
		last := &out[len(out)-1]
		if h.start == last.start && h.end == last.end {
			last.score = max(last.score, h.score)
			continue
		}
		out = append(out, h)
	}
	return out
}

// ───────────────────────────────────────────────────────────────────────────────
// OR-NEAR
// ───────────────────────────────────────────────────────────────────────────────

// orNearFiller groups clause spans lying within slop of each other into one
// match per cluster, scored by how many distinct clauses the cluster holds.
type orNearFiller struct {
	clauses []Spans
	cells   *orSpans
	slop    int
	sim     Similarity
}

func newOrNearSpans(clauses []Spans, slop int, sim Similarity) Spans {
	if len(clauses) == 0 {
		return emptySpans{}
	}
	cells := &orSpans{clauses: clauses, matched: make([]bool, len(clauses)), coordChunk: -1, lastChunk: -1}
	return newBufferedSpans(&orNearFiller{clauses: clauses, cells: cells, slop: slop, sim: sim})
}

func (f *orNearFiller) err() error { return f.cells.Err() }

func (f *orNearFiller) fill(target int) (int, []spanHit, bool) {
	if !f.cells.SkipTo(target) {
		return 0, nil, false
	}
	chunk := f.cells.Chunk()

	type clauseHit struct {
		spanHit
		clause int
	}
	var hits []clauseHit
	for len(f.cells.queue) > 0 && f.cells.Chunk() == chunk {
		top := f.cells.queue[0]
		hits = append(hits, clauseHit{
			spanHit: spanHit{start: top.spans.Start(), end: top.spans.End(), score: top.spans.Score()},
			clause:  top.clause,
		})
		if !f.cells.Next() {
			break
		}
	}

	var out []spanHit
	seen := make(map[int]bool, len(f.clauses))
	flush := func(cur spanHit) {
		cur.score *= f.sim.Coord(len(seen), len(f.clauses))
		out = append(out, cur)
		clear(seen)
	}
	var cur spanHit
	for i, h := range hits {
		if i > 0 && h.start-cur.end > f.slop {
			flush(cur)
		}
		if len(seen) == 0 {
			cur = h.spanHit
		} else {
			cur.end = max(cur.end, h.end)
			cur.score += h.score
		}
		seen[h.clause] = true
	}
	if len(hits) > 0 {
		flush(cur)
	}
	return chunk, out, true
}

func (f *orNearFiller) chunkCoord(chunk int) (int, int) { return f.cells.chunkCoord(chunk) }
