package chunkspan

import (
	"container/heap"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DOCUMENT RANKING
// ═══════════════════════════════════════════════════════════════════════════════
// DocHitQueue keeps the best startDoc+maxDocs documents seen. Internally it
// is a heap with the WORST kept document on top, so a new document either
// displaces that one or is dropped in O(log n):
//
//	size 3, offered scores: 0.4 0.9 0.1 0.7
//	  [0.4]  [0.4 0.9]  [0.1 0.4 0.9]  0.7 > 0.1 → [0.4 0.7 0.9]
//
// Drain pops worst-to-best and reverses, then divides every score by the
// best score OFFERED, so the top document of the full ranking scores 1.0
// even when paging skips past it.
//
// ORDERS:
// -------
// By default documents rank by descending score, ties by ascending document
// id. With sort fields the documents rank by each field in turn (missing
// values last) and by score after that.
// ═══════════════════════════════════════════════════════════════════════════════

// hitOrder reports whether a ranks before b.
type hitOrder func(a, b *DocHit) bool

func scoreOrder(a, b *DocHit) bool {
	if a.rawScore() != b.rawScore() {
		return a.rawScore() > b.rawScore()
	}
	return a.Doc < b.Doc
}

// sortOrder ranks by the given fields, then by score.
func sortOrder(fields []SortField, data []*SortData) hitOrder {
	return func(a, b *DocHit) bool {
		for i, f := range fields {
			if c := data[i].compare(a.Doc, b.Doc, f.Descending); c != 0 {
				return c < 0
			}
		}
		return scoreOrder(a, b)
	}
}

// worstFirst is a heap of documents with the lowest ranked on top.
type worstFirst struct {
	hits  []*DocHit
	order hitOrder
}

func (w *worstFirst) Len() int           { return len(w.hits) }
func (w *worstFirst) Less(i, j int) bool { return w.order(w.hits[j], w.hits[i]) }
func (w *worstFirst) Swap(i, j int)      { w.hits[i], w.hits[j] = w.hits[j], w.hits[i] }
func (w *worstFirst) Push(x any)         { w.hits = append(w.hits, x.(*DocHit)) }
func (w *worstFirst) Pop() any {
	n := len(w.hits)
	h := w.hits[n-1]
	w.hits[n-1] = nil
	w.hits = w.hits[:n-1]
	return h
}

// DocHitQueue is a bounded ranking of documents.
type DocHitQueue struct {
	size     int
	heap     worstFirst
	maxScore float64
	offered  int
}

// NewDocHitQueue keeps at most size documents; size <= 0 keeps all. A nil
// order ranks by score.
func NewDocHitQueue(size int, order hitOrder) *DocHitQueue {
	if order == nil {
		order = scoreOrder
	}
	return &DocHitQueue{size: size, heap: worstFirst{order: order}}
}

// Insert offers a document.
func (q *DocHitQueue) Insert(h *DocHit) {
	q.offered++
	if h.raw == 0 {
		h.raw = h.Score
	}
	q.maxScore = max(q.maxScore, h.raw)
	if q.size <= 0 || q.heap.Len() < q.size {
		heap.Push(&q.heap, h)
		return
	}
	if q.heap.order(h, q.heap.hits[0]) {
		q.heap.hits[0] = h
		heap.Fix(&q.heap, 0)
	}
}

// Len is the number of documents kept.
func (q *DocHitQueue) Len() int { return q.heap.Len() }

// Offered is the number of documents inserted, kept or not.
func (q *DocHitQueue) Offered() int { return q.offered }

// MaxScore is the best raw score offered.
func (q *DocHitQueue) MaxScore() float64 { return q.maxScore }

// Drain empties the queue, returning the kept documents best first with
// scores normalised by MaxScore.
func (q *DocHitQueue) Drain() []*DocHit {
	return q.drainScaled(q.maxScore)
}

// drainScaled normalises by an external maximum, so documents shared with
// another queue end up with the same score in both.
func (q *DocHitQueue) drainScaled(maxScore float64) []*DocHit {
	out := make([]*DocHit, q.heap.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&q.heap).(*DocHit)
	}
	for _, h := range out {
		if maxScore > 0 {
			h.Score = h.raw / maxScore
		}
	}
	return out
}
