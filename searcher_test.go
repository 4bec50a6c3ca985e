package chunkspan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(t *testing.T, s *Searcher, req Request) *Result {
	t.Helper()
	res, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestSearch_PhraseInOverlapReportedOnce(t *testing.T) {
	// Positions 7 and 8 fall in both chunk 0 [0,10) and chunk 1 [6,14).
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index, textDoc("a", filler("w", 7)+" white whale "+filler("x", 5)))
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: Phrase(FieldText, "white", "whale")})

	require.Len(t, res.Hits, 1)
	h := res.Hits[0]
	assert.Equal(t, "a", h.Key)
	assert.Equal(t, 1, h.Matches)
	assert.InDelta(t, 1.0, h.Score, 1e-9)
	assert.Equal(t, DedupStats{Emitted: 1, Cancelled: 1}, res.Stats)

	snippets := h.Snippets()
	require.Len(t, snippets, 1)
	sn := snippets[0]
	assert.Equal(t, FieldText, sn.Field)
	assert.Contains(t, sn.Text, "<hit><term>white</term> <term>whale</term></hit>")
	assert.Equal(t, "para", sn.SectionType)
	assert.Equal(t, Address{Node: 1, Word: 7}, sn.Start)
	assert.Equal(t, Address{Node: 1, Word: 8}, sn.End)
}

func TestSearch_StopWordPhrase(t *testing.T) {
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index,
		textDoc("a", "ahab hunts the white whale"),
		textDoc("b", "a white whale"),
	)
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: Phrase(FieldText, "the", "white", "whale")})
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "a", res.Hits[0].Key)
	assert.Contains(t, res.Hits[0].Snippets()[0].Text, "<term>whale</term></hit>")

	res = search(t, s, Request{Query: Phrase(FieldText, "the")})
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.TotalDocs)
}

func TestSearch_SectionTypeFilter(t *testing.T) {
	// Document a is 14 words: a heading of 4 then a paragraph of 10. Chunk 0
	// [0,10) holds both sections, chunk 1 [6,14) only the paragraph.
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index,
		Document{Key: "a", Sections: []Section{
			{Type: "head", Node: 1, Text: "white whale call me"},
			{Type: "para", Node: 2, Text: filler("p", 8) + " white whale"},
		}},
		textDoc("b", "a white whale"),
	)
	s := newTestSearcher(t, cfg, idx)
	filtered := func(types ...string) Request {
		return Request{Query: &SectionTypeFilterQuery{Query: Phrase(FieldText, "white", "whale"), Types: types}}
	}
	sectionTypes := func(h *DocHit) []string {
		var out []string
		for _, sn := range h.Snippets() {
			out = append(out, sn.SectionType)
		}
		return out
	}

	res := search(t, s, filtered("head"))
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "a", res.Hits[0].Key)
	assert.Equal(t, 1, res.Hits[0].Matches, "the paragraph match sits in a chunk without a heading")
	assert.Equal(t, []string{"head"}, sectionTypes(res.Hits[0]))

	res = search(t, s, filtered("para"))
	assert.ElementsMatch(t, []string{"a", "b"}, resultKeys(res))
	for _, h := range res.Hits {
		if h.Key == "a" {
			assert.Equal(t, 2, h.Matches, "chunk 0 holds a paragraph too")
			assert.ElementsMatch(t, []string{"head", "para"}, sectionTypes(h))
		}
	}

	res = search(t, s, filtered("list"))
	assert.Empty(t, res.Hits)
}

func rankingFixture(t *testing.T) (Config, *MemoryIndex) {
	cfg := testConfig()
	year := func(v string) MetaField { return MetaField{Name: "year", Values: []string{v}} }
	idx := buildIndex(t, cfg.Index,
		textDoc("a", "white whale", year("1851"), genre("fiction:sea")),
		textDoc("b", "white whale", year("1900"), genre("fiction:land")),
		textDoc("c", "white whale", year("200"), genre("nonfiction")),
		textDoc("d", "grey whale", year("1700"), genre("nonfiction")),
	)
	return cfg, idx
}

func resultKeys(res *Result) []string { return hitKeys(res.Hits) }

func TestSearch_SortAndPaging(t *testing.T) {
	cfg, idx := rankingFixture(t)
	s := newTestSearcher(t, cfg, idx)
	q := Phrase(FieldText, "white", "whale")

	res := search(t, s, Request{Query: q, SortFields: []SortField{{Field: "year"}}})
	assert.Equal(t, []string{"c", "a", "b"}, resultKeys(res))
	assert.Equal(t, 3, res.TotalDocs)

	res = search(t, s, Request{Query: q, SortFields: []SortField{{Field: "year", Descending: true}}, StartDoc: 1, MaxDocs: 1})
	assert.Equal(t, []string{"a"}, resultKeys(res))
	assert.Equal(t, 3, res.TotalDocs)
	assert.Equal(t, 1, res.StartDoc)
	assert.Equal(t, 2, res.EndDoc)

	res = search(t, s, Request{Query: q, StartDoc: 5})
	assert.Empty(t, res.Hits)
	assert.Equal(t, 5, res.EndDoc)
}

func TestSearch_ScoreOrderNormalised(t *testing.T) {
	cfg, idx := rankingFixture(t)
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: Or(NewTerm(FieldText, "white"), NewTerm(FieldText, "whale"))})
	require.Len(t, res.Hits, 4)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-9)
	for i := 1; i < len(res.Hits); i++ {
		assert.LessOrEqual(t, res.Hits[i].Score, res.Hits[i-1].Score)
	}
	assert.Equal(t, "d", res.Hits[3].Key, "one matching term ranks last")
}

func TestSearch_Groups(t *testing.T) {
	cfg, idx := rankingFixture(t)
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{
		Query:  Phrase(FieldText, "white", "whale"),
		Groups: []GroupSpec{{Field: "genre", HitGroup: HitGroupAll, MaxHits: 5}},
	})
	require.Len(t, res.Groups, 1)
	gr := res.Groups[0]
	assert.Equal(t, "genre", gr.Field)
	require.Len(t, gr.Groups, 2)
	assert.Equal(t, "fiction", gr.Groups[0].Value)
	assert.Equal(t, 2, gr.Groups[0].Count)
	assert.Len(t, gr.Groups[0].Subgroups, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, hitKeys(gr.Groups[0].Hits))
	assert.Equal(t, "nonfiction", gr.Groups[1].Value)
	assert.Equal(t, 1, gr.Groups[1].Count, "d does not match")

	for _, h := range gr.Groups[0].Hits {
		assert.InDelta(t, 1.0, h.Score, 1e-9, "equal documents keep the global normalisation")
	}
}

func TestSearch_GroupOnTokenizedField(t *testing.T) {
	cfg, idx := rankingFixture(t)
	s := newTestSearcher(t, cfg, idx)

	_, err := s.Search(context.Background(), Request{
		Query:  Phrase(FieldText, "white", "whale"),
		Groups: []GroupSpec{{Field: "year"}},
	})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSearch_AndAcrossFields(t *testing.T) {
	cfg := testConfig()
	title := func(v string) MetaField { return MetaField{Name: "title", Values: []string{v}} }
	idx := buildIndex(t, cfg.Index,
		textDoc("a", "the white whale", title("Moby Dick")),
		textDoc("b", "the white whale", title("Omoo")),
	)
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: And(Phrase(FieldText, "white", "whale"), Exact("title", "moby", "dick"))})
	require.Equal(t, []string{"a"}, resultKeys(res))

	var fields []string
	for _, sn := range res.Hits[0].Snippets() {
		fields = append(fields, sn.Field)
		if sn.Field == "title" {
			assert.Equal(t, "<hit><term>Moby</term> <term>Dick</term></hit>", sn.Text)
		}
	}
	assert.ElementsMatch(t, []string{FieldText, "title"}, fields)
	assert.Equal(t, []string{"Moby Dick"}, res.Hits[0].Meta()["title"])
}

func TestSearch_MoreLikeThis(t *testing.T) {
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index,
		textDoc("a", "harpoon whale ocean"),
		textDoc("b", "harpoon whale ship"),
		textDoc("c", "desert camel sand"),
	)
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: &MoreLikeThisQuery{Common: Common{Recording: RecordSpans}, Key: "a"}})
	assert.Equal(t, []string{"b"}, resultKeys(res))

	res = search(t, s, Request{Query: &MoreLikeThisQuery{Key: "missing"}})
	assert.Empty(t, res.Hits)
}

func TestSearch_SpellingAndRespell(t *testing.T) {
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index, textDoc("a", "white whale"), textDoc("b", "grey whale"))
	s := newTestSearcher(t, cfg, idx)

	res := search(t, s, Request{Query: Phrase(FieldText, "whsle"), Spelling: true})
	assert.Empty(t, res.Hits)
	require.Contains(t, res.Suggestions, "whsle")
	assert.Equal(t, "whale", res.Suggestions["whsle"][0].Term)

	res = search(t, s, Request{Query: Phrase(FieldText, "whsle"), Respell: true})
	assert.Equal(t, []string{"a", "b"}, resultKeys(res))
}

func TestSearch_BoostFile(t *testing.T) {
	cfg := testConfig()
	idx := buildIndex(t, cfg.Index, textDoc("a", "white whale"), textDoc("b", "white whale"))
	s := newTestSearcher(t, cfg, idx)
	q := Phrase(FieldText, "white", "whale")

	assert.Equal(t, []string{"a", "b"}, resultKeys(search(t, s, Request{Query: q})), "ties by document")

	path := filepath.Join(t.TempDir(), "boosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("b|3\n"), 0o644))
	res := search(t, s, Request{Query: q, BoostFile: path})
	assert.Equal(t, []string{"b", "a"}, resultKeys(res))
	assert.InDelta(t, 1.0/3, res.Hits[1].Score, 1e-9)

	_, err := s.Search(context.Background(), Request{Query: q, BoostFile: filepath.Join(t.TempDir(), "none")})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSearch_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.TermLimit = 3
	idx := buildIndex(t, cfg.Index, textDoc("a", filler("w", 12)))
	m := NewMetrics(prometheus.NewRegistry())
	s := newTestSearcher(t, cfg, idx, WithMetrics(m))
	ctx := context.Background()

	_, err := s.Search(ctx, Request{})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = s.Search(ctx, Request{Query: Phrase(FieldText, "waa"), StartDoc: -1})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = s.Search(ctx, Request{Query: &WildcardQuery{FieldName: FieldText, Pattern: "w*"}})
	assert.ErrorIs(t, err, ErrExcessiveWork)

	_, err = s.Search(ctx, Request{Query: &WildcardQuery{FieldName: FieldText, Pattern: "wa?"}})
	assert.ErrorIs(t, err, ErrExcessiveWork)

	res := search(t, s, Request{Query: Phrase(FieldText, "waa")})
	assert.Len(t, res.Hits, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("configuration")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("excessive_work")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ok")))
}

func TestSearcher_Swap(t *testing.T) {
	cfg := testConfig()
	idx := NewMemoryIndex()
	ix, err := NewIndexer(idx, cfg.Index, discardLogger())
	require.NoError(t, err)
	require.NoError(t, ix.Add(textDoc("a", "white whale")))
	ix.Commit()

	s := newTestSearcher(t, cfg, idx)
	gen := s.Generation()
	q := Phrase(FieldText, "white", "whale")
	assert.Equal(t, []string{"a"}, resultKeys(search(t, s, Request{Query: q})))

	require.NoError(t, ix.Add(textDoc("b", "white whale")))
	ix.Commit()
	require.NoError(t, s.Swap(idx))
	assert.Greater(t, s.Generation(), gen)
	assert.Equal(t, []string{"a", "b"}, resultKeys(search(t, s, Request{Query: q})))
}

func TestSearcher_RefreshThroughReopen(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.PollInterval = time.Nanosecond
	old := buildIndex(t, cfg.Index, textDoc("a", "white whale"))

	next := NewMemoryIndex()
	ix, err := NewIndexer(next, cfg.Index, discardLogger())
	require.NoError(t, err)
	require.NoError(t, ix.Add(textDoc("a", "white whale")))
	ix.Commit()
	require.NoError(t, ix.Add(textDoc("b", "white whale")))
	ix.Commit()

	reopened := 0
	s := newTestSearcher(t, cfg, old, WithReopen(func(path string) (IndexReader, error) {
		assert.Equal(t, "test", path)
		reopened++
		return next, nil
	}))
	time.Sleep(time.Millisecond)

	res := search(t, s, Request{Query: Phrase(FieldText, "white", "whale")})
	assert.Equal(t, []string{"a", "b"}, resultKeys(res))
	assert.Equal(t, 1, reopened)
	assert.Equal(t, next.Generation(), s.Generation())
}
