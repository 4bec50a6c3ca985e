package chunkspan

import (
	"container/heap"
	"sort"
)

// SpanList selects which deduplicated hits of one document survive the
// snippet cap.
//
//	ranked,   bounded    keep the best max hits by score
//	unranked, bounded    keep the first max hits in document order
//	either,   unlimited  keep everything, sorted once by Hits
type SpanList struct {
	ranked bool
	max    int // <= 0 means unlimited
	hits   []SpanHit
	total  int
}

// NewSpanList returns a list keeping at most max hits.
func NewSpanList(ranked bool, max int) *SpanList {
	return &SpanList{ranked: ranked, max: max}
}

// Add offers a hit.
func (l *SpanList) Add(h SpanHit) {
	l.total++
	switch {
	case l.max <= 0:
		l.hits = append(l.hits, h)
	case l.ranked:
		l.addRanked(h)
	default:
		l.addUnranked(h)
	}
}

func (l *SpanList) addRanked(h SpanHit) {
	q := (*minScoreHeap)(&l.hits)
	if len(l.hits) < l.max {
		heap.Push(q, h)
		return
	}
	if betterHit(h, l.hits[0]) {
		l.hits[0] = h
		heap.Fix(q, 0)
	}
}

func (l *SpanList) addUnranked(h SpanHit) {
	i := sort.Search(len(l.hits), func(i int) bool { return positionLess(h, l.hits[i]) })
	if i >= l.max {
		return
	}
	if len(l.hits) < l.max {
		l.hits = append(l.hits, SpanHit{})
	}
	copy(l.hits[i+1:], l.hits[i:])
	l.hits[i] = h
}

// Total is the number of hits offered, kept or not.
func (l *SpanList) Total() int { return l.total }

// Hits returns the kept hits: by descending score when ranked, in document
// order otherwise.
func (l *SpanList) Hits() []SpanHit {
	out := append([]SpanHit(nil), l.hits...)
	if l.ranked {
		sort.Slice(out, func(i, j int) bool { return betterHit(out[i], out[j]) })
	} else {
		sort.Slice(out, func(i, j int) bool { return positionLess(out[i], out[j]) })
	}
	return out
}

// betterHit orders by score, then document position.
func betterHit(a, b SpanHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return positionLess(a, b)
}

func positionLess(a, b SpanHit) bool {
	if a.Chunk != b.Chunk {
		return a.Chunk < b.Chunk
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}

// minScoreHeap keeps the worst kept hit on top.
type minScoreHeap []SpanHit

func (h minScoreHeap) Len() int           { return len(h) }
func (h minScoreHeap) Less(i, j int) bool { return betterHit(h[j], h[i]) }
func (h minScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minScoreHeap) Push(x any)        { *h = append(*h, x.(SpanHit)) }
func (h *minScoreHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
