package chunkspan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	doc int
	hit SpanHit
}

func collectingQueue(size, overlap int) (*DedupeQueue, *[]emitted) {
	var out []emitted
	q := NewDedupeQueue(size, overlap, nil, func(doc int, hit SpanHit) {
		out = append(out, emitted{doc: doc, hit: hit})
	})
	return q, &out
}

func TestDedupeQueue_OverlapDuplicateEmittedOnce(t *testing.T) {
	q, out := collectingQueue(100, 20)

	// "white whale" at document offset 84 lies in the overlap of chunks 7
	// and 8; chunk 8 starts at document offset 80.
	q.StartChunk(7, 9)
	q.Add(84, 86, 0.61)
	q.FinishChunk(1)
	q.StartChunk(8, 9)
	q.Add(4, 6, 0.58)
	q.FinishChunk(1)
	q.Flush()

	require.Len(t, *out, 1)
	got := (*out)[0]
	assert.Equal(t, 9, got.doc)
	assert.Equal(t, SpanHit{Chunk: 7, Start: 84, End: 86, Score: 0.61}, got.hit)
	assert.Equal(t, DedupStats{Emitted: 1, Cancelled: 1}, q.Stats())
}

func TestDedupeQueue_ScoresNonIncreasingWithinFlush(t *testing.T) {
	q, out := collectingQueue(100, 20)

	q.StartChunk(0, 5)
	q.Add(0, 2, 0.3)
	q.Add(30, 32, 0.9)
	q.Add(60, 62, 0.5)
	q.FinishChunk(1)
	q.Flush()

	require.Len(t, *out, 3)
	for i := 1; i < len(*out); i++ {
		assert.GreaterOrEqual(t, (*out)[i-1].hit.Score, (*out)[i].hit.Score)
	}
	assert.Equal(t, 30, (*out)[0].hit.Start)
}

func TestDedupeQueue_DampsNearbyHits(t *testing.T) {
	q, out := collectingQueue(100, 20)

	q.StartChunk(0, 5)
	q.Add(0, 2, 0.9)
	q.Add(12, 14, 0.8)
	q.FinishChunk(1)
	q.Flush()

	require.Len(t, *out, 2)
	assert.Equal(t, 0.9, (*out)[0].hit.Score)
	assert.InDelta(t, 0.8*math.Sqrt(10.0/20.0), (*out)[1].hit.Score, 1e-9)
	assert.Equal(t, 1, q.Stats().Damped)
}

func TestDedupeQueue_ChunkFactorScalesScores(t *testing.T) {
	q, out := collectingQueue(100, 20)

	q.StartChunk(3, 4)
	q.Add(1, 2, 0.8)
	q.FinishChunk(0.5)
	q.Flush()

	require.Len(t, *out, 1)
	assert.InDelta(t, 0.4, (*out)[0].hit.Score, 1e-12)
}

func TestDedupeQueue_NewDocumentClosesWindow(t *testing.T) {
	q, out := collectingQueue(100, 20)

	q.StartChunk(0, 1)
	q.Add(84, 86, 0.5)
	q.FinishChunk(1)
	// Chunk 2 directly follows but belongs to another document, so its hit
	// at local [4, 6) is not a copy of the one above.
	q.StartChunk(2, 3)
	q.Add(4, 6, 0.5)
	q.FinishChunk(1)
	q.Flush()

	require.Len(t, *out, 2)
	assert.Equal(t, 1, (*out)[0].doc)
	assert.Equal(t, 3, (*out)[1].doc)
	assert.Zero(t, q.Stats().Cancelled)
}

// Re-running the queue over its own output changes nothing: the surviving
// intervals are already disjoint.
func TestDedupeQueue_FixedPoint(t *testing.T) {
	first, out := collectingQueue(10, 4)
	input := [][]spanHit{
		{{0, 3, 0.4}, {2, 5, 0.7}, {6, 8, 0.6}},
		{{0, 2, 0.65}, {1, 4, 0.2}, {5, 6, 0.9}},
		{{0, 1, 0.3}, {3, 5, 0.5}},
	}
	for i, hits := range input {
		first.StartChunk(i, 10)
		for _, h := range hits {
			first.Add(h.start, h.end, h.score)
		}
		first.FinishChunk(1)
	}
	first.Flush()
	require.NotEmpty(t, *out)

	type interval struct{ start, end int }
	windowed := func(hits []emitted) map[interval]bool {
		set := make(map[interval]bool)
		for _, e := range hits {
			base := e.hit.Chunk * 6
			set[interval{base + e.hit.Start, base + e.hit.End}] = true
		}
		return set
	}
	once := windowed(*out)
	for a := range once {
		for b := range once {
			if a != b {
				assert.False(t, a.start < b.end && b.start < a.end, "%v overlaps %v", a, b)
			}
		}
	}

	second, again := collectingQueue(10, 4)
	byChunk := make(map[int][]SpanHit)
	for _, e := range *out {
		byChunk[e.hit.Chunk] = append(byChunk[e.hit.Chunk], e.hit)
	}
	for c := 0; c < len(input); c++ {
		second.StartChunk(c, 10)
		for _, h := range byChunk[c] {
			second.Add(h.Start, h.End, h.Score)
		}
		second.FinishChunk(1)
	}
	second.Flush()

	assert.Equal(t, once, windowed(*again))
	assert.Zero(t, second.Stats().Cancelled)
}

func TestDedupeQueue_DegradesAtLiveHitCap(t *testing.T) {
	q, out := collectingQueue(1000, 1)

	// One word apart: no damping and no early window flush.
	q.StartChunk(0, 1)
	for i := 0; i < maxLiveHits; i++ {
		q.Add(2*i, 2*i+1, 0.5)
	}
	// Overlaps the placeholder left by the degraded window.
	q.Add(50, 51, 0.9)
	q.FinishChunk(1)
	q.Flush()

	st := q.Stats()
	assert.Equal(t, 1, st.Degraded)
	assert.Equal(t, maxLiveHits, len(*out), "placeholder is never emitted")
	assert.Equal(t, 1, st.Cancelled)
	for _, e := range *out {
		assert.Equal(t, 0.5, e.hit.Score, "placeholder damps nothing")
	}
}

func TestDedupeQueue_OutOfOrderChunksPanic(t *testing.T) {
	q, _ := collectingQueue(100, 20)
	q.StartChunk(5, 9)
	q.FinishChunk(1)

	var raised any
	func() {
		defer func() { raised = recover() }()
		q.StartChunk(4, 9)
	}()

	require.IsType(t, &corruptionPanic{}, raised)
	err := raised.(*corruptionPanic).err
	assert.ErrorIs(t, err, ErrIndexCorruption)
	assert.Contains(t, err.Error(), "chunk 4 arrived after chunk 5")
}
