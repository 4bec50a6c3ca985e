package chunkspan

import (
	"container/heap"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DE-DUPLICATION ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
// Adjacent chunks share chunkOverlap words, so a phrase inside the overlap is
// found twice. The DedupeQueue merges the hits of a run of contiguous chunks
// into one WINDOW with a single coordinate space, then keeps one winner per
// group of overlapping hits:
//
//	chunk 7 (base 0):   "white whale" local [84, 86) → window [84, 86)  score 0.61
//	chunk 8 (base 80):  "white whale" local [4, 6)   → window [84, 86)  score 0.58
//
//	flush: pop 0.61, cancel the 0.58 copy (overlaps) → one hit reported
//
// STATE MACHINE (per window):
// ---------------------------
//
//	Idle ──StartChunk──▶ Accumulating ──FinishChunk──▶ Merged
//	                         ▲                          │
//	                         └─StartChunk(contiguous)───┤
//	                                                    ▼
//	              Flush / new document / gap ──▶ Flushed (= Idle)
//
// FLUSH ALGORITHM:
// ----------------
// Repeatedly pop the best live hit and report it. Every remaining hit that
// overlaps it is cancelled; every remaining hit closer than chunkOverlap
// words is damped by Similarity.Damp(distance, chunkOverlap). Hits are
// reported in pop order, so scores never increase within one flush.
//
// LIMITS:
// -------
// A hit starting 2×chunkOverlap past everything in the window cannot interact
// with it, so the window is flushed first. A window reaching maxLiveHits is
// flushed at once and replaced by a zero-score placeholder spanning all it
// covered; later hits overlapping the placeholder are cancelled against it.
// This is an approximation that only pathological queries reach.
// ═══════════════════════════════════════════════════════════════════════════════

// maxLiveHits is the per-window cap before the queue degrades.
const maxLiveHits = 100

// SpanHit is a deduplicated match in chunk-local coordinates.
type SpanHit struct {
	Chunk int
	Start int
	End   int
	Score float64
}

// DedupStats counts what a DedupeQueue did.
type DedupStats struct {
	Emitted   int
	Cancelled int
	Damped    int
	Degraded  int
}

type dedupState int

const (
	dedupIdle dedupState = iota
	dedupAccumulating
	dedupMerged
)

type hitState int

const (
	hitLive hitState = iota
	hitCancelled
	hitEmitted
)

type dedupHit struct {
	chunk       int
	local       spanHit // chunk-local interval, unscaled score
	start, end  int     // window coordinates
	score       float64
	state       hitState
	placeholder bool
	seq         int
	index       int // position in the heap
}

func (h *dedupHit) overlaps(o *dedupHit) bool {
	return h.start < o.end && o.start < h.end
}

// distance is the number of word positions between two disjoint hits.
func (h *dedupHit) distance(o *dedupHit) int {
	if o.start >= h.end {
		return o.start - h.end
	}
	return h.start - o.end
}

type hitHeap []*dedupHit

func (q hitHeap) Len() int { return len(q) }
func (q hitHeap) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.placeholder != b.placeholder {
		return a.placeholder
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.seq < b.seq
}
func (q hitHeap) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *hitHeap) Push(x any) {
	h := x.(*dedupHit)
	h.index = len(*q)
	*q = append(*q, h)
}
func (q *hitHeap) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}

// DedupeQueue removes duplicate hits caused by chunk overlap. Hits must be
// fed in chunk order: StartChunk, any number of Add, FinishChunk.
type DedupeQueue struct {
	overlap int
	step    int
	sim     Similarity
	emit    func(doc int, hit SpanHit)

	state   dedupState
	doc     int
	chunk   int
	base    int
	pending []spanHit
	live    []*dedupHit // ascending by window start
	heap    hitHeap
	minPos  int
	maxEnd  int
	seq     int
	stats   DedupStats
}

// NewDedupeQueue returns a queue for chunks of the given geometry. emit
// receives surviving hits, best first within each flush.
func NewDedupeQueue(chunkSize, chunkOverlap int, sim Similarity, emit func(doc int, hit SpanHit)) *DedupeQueue {
	if sim == nil {
		sim = DefaultSimilarity{}
	}
	return &DedupeQueue{
		overlap: chunkOverlap,
		step:    chunkSize - chunkOverlap,
		sim:     sim,
		emit:    emit,
		doc:     -1,
		chunk:   -1,
	}
}

// StartChunk begins collecting hits of chunk, which belongs to doc. A chunk
// that does not directly follow the previous one of the same document closes
// the current window.
func (q *DedupeQueue) StartChunk(chunk, doc int) {
	if q.state == dedupAccumulating {
		failCorrupt("chunk %d started before chunk %d finished", chunk, q.chunk)
	}
	if q.chunk >= 0 && chunk <= q.chunk {
		failCorrupt("chunk %d arrived after chunk %d", chunk, q.chunk)
	}
	if q.state == dedupMerged && doc == q.doc && chunk == q.chunk+1 {
		q.base += q.step
	} else {
		q.Flush()
		q.base = 0
	}
	q.chunk, q.doc = chunk, doc
	q.state = dedupAccumulating
}

// Add buffers a hit of the current chunk.
func (q *DedupeQueue) Add(start, end int, score float64) {
	if q.state != dedupAccumulating {
		failCorrupt("hit added outside a chunk")
	}
	q.pending = append(q.pending, spanHit{start: start, end: end, score: score})
}

// FinishChunk scales the buffered hits by factor and merges them into the
// window.
func (q *DedupeQueue) FinishChunk(factor float64) {
	if q.state != dedupAccumulating {
		failCorrupt("chunk finished twice")
	}
	q.state = dedupMerged
	for _, p := range q.pending {
		h := &dedupHit{
			chunk: q.chunk,
			local: p,
			start: q.base + p.start,
			end:   q.base + p.end,
			score: p.score * factor,
		}
		if len(q.live) > 0 && h.start >= q.maxEnd+2*q.overlap {
			q.flushWindow()
		}
		q.insert(h)
		if len(q.live) >= maxLiveHits {
			q.degrade()
		}
	}
	q.pending = q.pending[:0]
}

func (q *DedupeQueue) insert(h *dedupHit) {
	h.seq = q.seq
	q.seq++
	if len(q.live) == 0 {
		q.minPos, q.maxEnd = h.start, h.end
	} else {
		q.minPos = min(q.minPos, h.start)
		q.maxEnd = max(q.maxEnd, h.end)
	}
	i := sort.Search(len(q.live), func(i int) bool { return q.live[i].start > h.start })
	q.live = append(q.live, nil)
	copy(q.live[i+1:], q.live[i:])
	q.live[i] = h
	heap.Push(&q.heap, h)
}

// degrade flushes a saturated window and leaves a placeholder covering it.
func (q *DedupeQueue) degrade() {
	from, to := q.minPos, q.maxEnd
	q.flushWindow()
	q.insert(&dedupHit{chunk: q.chunk, start: from, end: to, placeholder: true})
	q.stats.Degraded++
}

// Flush reports every hit of the current window and returns the queue to
// idle. The current chunk must be finished.
func (q *DedupeQueue) Flush() {
	if q.state == dedupAccumulating {
		failCorrupt("flush inside chunk %d", q.chunk)
	}
	q.flushWindow()
	q.state = dedupIdle
}

func (q *DedupeQueue) flushWindow() {
	for q.heap.Len() > 0 {
		top := heap.Pop(&q.heap).(*dedupHit)
		if top.state != hitLive {
			continue
		}
		top.state = hitEmitted
		for _, h := range q.live {
			if h.state != hitLive || h == top {
				continue
			}
			if h.overlaps(top) {
				h.state = hitCancelled
				heap.Remove(&q.heap, h.index)
				q.stats.Cancelled++
				continue
			}
			if top.placeholder {
				continue
			}
			if d := top.distance(h); d < q.overlap {
				h.score *= q.sim.Damp(d, q.overlap)
				heap.Fix(&q.heap, h.index)
				q.stats.Damped++
			}
		}
		if top.placeholder {
			continue
		}
		q.stats.Emitted++
		if q.emit != nil {
			q.emit(q.doc, SpanHit{Chunk: top.chunk, Start: top.local.start, End: top.local.end, Score: top.score})
		}
	}
	clear(q.live)
	q.live = q.live[:0]
}

// Stats returns the running counters.
func (q *DedupeQueue) Stats() DedupStats { return q.stats }
