package chunkspan

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// defaultLikeTerms is the number of terms a MoreLikeThisQuery selects when
// MaxTerms is unset.
const defaultLikeTerms = 10

type likeTerm struct {
	term  Term
	score float64
}

// likeTerms finds the target document of q and selects its most distinctive
// terms by tf·idf. Overlapping words of consecutive text chunks are counted
// once. A key that is not in the index yields no target and no terms.
func (e *evaluator) likeTerms(q *MoreLikeThisQuery) (int, []likeTerm, error) {
	target, err := e.docByKey(q.Key)
	if err != nil || target < 0 {
		return -1, nil, err
	}
	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{FieldText}
	}

	tf := make(map[Term]int)
	count := func(field, stored string, skipBelow int) {
		for _, w := range StripMarkers(stored, e.analyzer).Words {
			if w.Boundary != BoundaryNone || w.Pos < skipBelow || e.stop.Contains(w.Term) {
				continue
			}
			tf[Term{Field: field, Text: w.Term}]++
		}
	}
	for _, field := range fields {
		if field != FieldText {
			if v, ok := e.reader.FieldValue(target, field); ok {
				count(field, v, 0)
			}
			continue
		}
		first := e.docs.FirstChunk(target)
		for c := first; c < target; c++ {
			v, _ := e.reader.FieldValue(c, FieldText)
			skip := 0
			if c > first {
				skip = e.index.ChunkOverlap
			}
			count(FieldText, v, skip)
		}
		if err := e.work.tick(int64(target - first)); err != nil {
			return -1, nil, err
		}
	}

	terms := make([]likeTerm, 0, len(tf))
	for t, n := range tf {
		df := e.reader.DocFreq(t)
		if df < 2 {
			continue // only the target itself
		}
		terms = append(terms, likeTerm{term: t, score: float64(n) * e.sim.IDF(df, e.numChunks)})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].score != terms[j].score {
			return terms[i].score > terms[j].score
		}
		if terms[i].term.Field != terms[j].term.Field {
			return terms[i].term.Field < terms[j].term.Field
		}
		return terms[i].term.Text < terms[j].term.Text
	})
	limit := q.MaxTerms
	if limit <= 0 {
		limit = defaultLikeTerms
	}
	if len(terms) > limit {
		terms = terms[:limit]
	}
	for _, t := range terms {
		if err := e.terms.Add(t.term); err != nil {
			return -1, nil, err
		}
	}
	return target, terms, nil
}

// docByKey returns the live document holding key, or -1.
func (e *evaluator) docByKey(key string) (int, error) {
	return liveDocOf(e.reader, Term{Field: FieldKey, Text: key})
}

// likeFieldSpans returns one OR stream per field over the selected terms,
// weighted relative to the best term.
func (e *evaluator) likeFieldSpans(q *MoreLikeThisQuery, terms []likeTerm) (map[string]Spans, []string, error) {
	if len(terms) == 0 {
		return nil, nil, nil
	}
	top := terms[0].score
	byField := make(map[string][]Spans)
	var order []string
	for _, t := range terms {
		s, err := e.termSpans(t.term, q.Boost()*t.score/top)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := byField[t.term.Field]; !ok {
			order = append(order, t.term.Field)
		}
		byField[t.term.Field] = append(byField[t.term.Field], s)
	}
	out := make(map[string]Spans, len(byField))
	for f, clauses := range byField {
		out[f] = newOrSpans(clauses)
	}
	return out, order, nil
}

func (e *evaluator) planLike(p *queryPlan, q *MoreLikeThisQuery, filter *roaring.Bitmap) error {
	target, terms, err := e.likeTerms(q)
	if err != nil || target < 0 {
		return err
	}
	streams, order, err := e.likeFieldSpans(q, terms)
	if err != nil {
		return err
	}
	self := roaring.BitmapOf(uint32(target))
	for _, f := range order {
		s := newFilterSpans(streams[f], docSetGate(self, true, e.docs))
		p.fields = append(p.fields, fieldPlan{field: f, spans: e.restrict(s, filter), recording: q.Recording})
	}
	return nil
}

func (e *evaluator) likeDocs(q *MoreLikeThisQuery) (*roaring.Bitmap, error) {
	docs := roaring.New()
	target, terms, err := e.likeTerms(q)
	if err != nil || target < 0 {
		return docs, err
	}
	for _, t := range terms {
		chunks, err := chunkSet(e.reader, []Term{t.term})
		if err != nil {
			return nil, err
		}
		docs.Or(e.docsOfChunks(chunks))
	}
	docs.Remove(uint32(target))
	return docs, nil
}
