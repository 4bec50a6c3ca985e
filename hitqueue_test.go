package chunkspan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredHits(scores ...float64) []*DocHit {
	hits := make([]*DocHit, len(scores))
	for i, s := range scores {
		hits[i] = &DocHit{Doc: i, Score: s}
	}
	return hits
}

func hitDocs(hits []*DocHit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Doc
	}
	return out
}

func TestDocHitQueue_KeepsBest(t *testing.T) {
	q := NewDocHitQueue(3, nil)
	for _, h := range scoredHits(0.4, 0.9, 0.1, 0.7) {
		q.Insert(h)
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 4, q.Offered())
	assert.Equal(t, 0.9, q.MaxScore())

	got := q.Drain()
	assert.Equal(t, []int{1, 3, 0}, hitDocs(got))
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.7/0.9, got[1].Score, 1e-9)
	assert.InDelta(t, 0.4/0.9, got[2].Score, 1e-9)
	assert.Zero(t, q.Len())
}

func TestDocHitQueue_NormalisesByBestOffered(t *testing.T) {
	// Paging past the best document still scores relative to it.
	q := NewDocHitQueue(1, func(a, b *DocHit) bool { return a.Doc < b.Doc })
	for _, h := range scoredHits(0.2, 0.8) {
		q.Insert(h)
	}
	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Doc)
	assert.InDelta(t, 0.25, got[0].Score, 1e-9)
}

func TestDocHitQueue_TiesByDocument(t *testing.T) {
	q := NewDocHitQueue(0, nil)
	hits := scoredHits(0.5, 0.5, 0.5)
	for i := len(hits) - 1; i >= 0; i-- {
		q.Insert(hits[i])
	}
	assert.Equal(t, []int{0, 1, 2}, hitDocs(q.Drain()))
}

func TestDocHitQueue_DrainScaled(t *testing.T) {
	q := NewDocHitQueue(0, nil)
	for _, h := range scoredHits(0.3, 0.6) {
		q.Insert(h)
	}
	got := q.drainScaled(1.2)
	assert.InDelta(t, 0.5, got[0].Score, 1e-9)
	assert.InDelta(t, 0.25, got[1].Score, 1e-9)
}

func sortFixture(t *testing.T) (*MemoryIndex, *DocNumMap) {
	t.Helper()
	cfg := testConfig().Index
	year := func(v string) MetaField { return MetaField{Name: "year", Values: []string{v}} }
	idx := buildIndex(t, cfg,
		textDoc("a", "one", year("1851"), MetaField{Name: "title", Values: []string{"Moby Dick"}}),
		textDoc("b", "two", year("200")),
		textDoc("c", "three", MetaField{Name: "title", Values: []string{"Billy Budd", "Typee"}}),
		textDoc("d", "four", year("1900"), MetaField{Name: "title", Values: []string{"Omoo"}}),
	)
	docs, err := BuildDocNumMap(idx, cfg)
	require.NoError(t, err)
	return idx, docs
}

func TestSortData(t *testing.T) {
	idx, docs := sortFixture(t)

	years := BuildSortData(idx, docs, "year")
	v, ok := years.Value(3)
	assert.True(t, ok)
	assert.Equal(t, "200", v)
	_, ok = years.Value(5)
	assert.False(t, ok)

	assert.Equal(t, -1, years.compare(3, 1, false), "numeric: 200 < 1851")
	assert.Equal(t, 1, years.compare(3, 1, true))
	assert.Equal(t, 1, years.compare(5, 1, false), "missing value sorts last")
	assert.Equal(t, 1, years.compare(5, 1, true), "in either direction")

	titles := BuildSortData(idx, docs, "title")
	v, _ = titles.Value(5)
	assert.Equal(t, "Billy Budd", v, "first value only")
	assert.Equal(t, -1, titles.compare(5, 1, false))
}

func TestSortOrder(t *testing.T) {
	idx, docs := sortFixture(t)
	fields := []SortField{{Field: "year", Descending: true}}
	q := NewDocHitQueue(0, sortOrder(fields, []*SortData{BuildSortData(idx, docs, "year")}))

	for _, h := range []*DocHit{{Doc: 1, Score: 0.1}, {Doc: 3, Score: 0.9}, {Doc: 5, Score: 0.5}, {Doc: 7, Score: 0.2}} {
		q.Insert(h)
	}
	assert.Equal(t, []int{7, 1, 3, 5}, hitDocs(q.Drain()))
}
