package chunkspan

import (
	"sort"
)

// docScorer accumulates the deduplicated hits of every plan field per
// document, the way a proximity ranking sums the covers it finds:
//
//	text  hits 0.61 + 0.20      → 0.81
//	title hit  0.90             → 0.90
//	doc score = (0.81 + 0.90) × coord(2 of 2 fields) × boost(doc)
//
// Hits arrive best first per field, so each field's SpanList sees them in
// the order it needs.
type docScorer struct {
	fields      []fieldPlan
	maxSnippets int
	ranked      bool
	docs        map[int]*docAccum
}

type docAccum struct {
	scores  []float64
	matched int
	lists   []*SpanList
	matches int
}

// newDocScorer keeps at most maxSnippets hits per document field; <= 0
// keeps every hit. ranked keeps the best hits rather than the first ones.
func newDocScorer(fields []fieldPlan, maxSnippets int, ranked bool) *docScorer {
	return &docScorer{
		fields:      fields,
		maxSnippets: maxSnippets,
		ranked:      ranked,
		docs:        make(map[int]*docAccum),
	}
}

// add is the hitSink of a plan run.
func (s *docScorer) add(field, doc int, hit SpanHit) {
	acc, ok := s.docs[doc]
	if !ok {
		acc = &docAccum{
			scores: make([]float64, len(s.fields)),
			lists:  make([]*SpanList, len(s.fields)),
		}
		s.docs[doc] = acc
	}
	if acc.lists[field] == nil {
		acc.matched++
		acc.lists[field] = NewSpanList(s.ranked, s.maxSnippets)
	}
	acc.scores[field] += hit.Score
	acc.matches++
	if s.fields[field].recording != RecordNone {
		acc.lists[field].Add(hit)
	}
}

// hits returns one DocHit per scored document, in document order.
func (s *docScorer) hits(sim Similarity, boosts BoostSet, r IndexReader, loader *docLoader) []*DocHit {
	docs := make([]int, 0, len(s.docs))
	for d := range s.docs {
		docs = append(docs, d)
	}
	sort.Ints(docs)

	out := make([]*DocHit, 0, len(docs))
	for _, d := range docs {
		acc := s.docs[d]
		sum := 0.0
		for _, v := range acc.scores {
			sum += v
		}
		score := sum * sim.Coord(acc.matched, len(s.fields)) * boosts.Boost(d)
		key, _ := r.FieldValue(d, FieldKey)
		h := &DocHit{Doc: d, Key: key, Score: score, raw: score, Matches: acc.matches, loader: loader}
		for i, l := range acc.lists {
			if l == nil || s.fields[i].recording == RecordNone {
				continue
			}
			h.spans = append(h.spans, fieldSpans{
				field:     s.fields[i].field,
				recording: s.fields[i].recording,
				hits:      l.Hits(),
			})
		}
		out = append(out, h)
	}
	return out
}
