package chunkspan

import (
	"context"
	"log/slog"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ═══════════════════════════════════════════════════════════════════════════════
// A rewritten query compiles into a plan: one span stream per field it
// scores, each restricted to the documents the whole query can match.
//
//	And(Phrase(text, "white whale"), Exact(title, "moby dick"))
//
//	1. document sets   text → {3, 9, 42}    title → {9, 17}    ∩ → {9}
//	2. plan            text:  near(white whale) IN {9}
//	                   title: exact(moby dick)  IN {9}
//	3. run             each stream → DedupeQueue → collector
//
// Span-level nodes (Term, Near, Or, ...) compile straight into a Spans.
// Document-level nodes (And, MultiFieldAnd, MoreLikeThis) are evaluated to
// roaring document sets first.
// ═══════════════════════════════════════════════════════════════════════════════

type evaluator struct {
	ctx       context.Context
	reader    IndexReader
	index     IndexConfig
	docs      *DocNumMap
	terms     *TermMap
	work      *workTracker
	sim       Similarity
	stop      StopSet
	analyzer  AnalyzerConfig
	numChunks int
	logger    *slog.Logger
}

// newEvaluator prepares the evaluation of one query. analyzer must match
// the one the index was built with; it normalises stored text.
func newEvaluator(ctx context.Context, r IndexReader, cfg Config, docs *DocNumMap, analyzer AnalyzerConfig, logger *slog.Logger) *evaluator {
	return &evaluator{
		ctx:       ctx,
		reader:    r,
		index:     cfg.Index,
		docs:      docs,
		analyzer:  analyzer,
		terms:     NewTermMap(cfg.Limits.TermLimit),
		work:      newWorkTracker(ctx, cfg.Limits),
		sim:       DefaultSimilarity{},
		stop:      NewStopSet(cfg.Index.StopWords),
		numChunks: max(r.MaxChunk(), 1),
		logger:    componentLogger(logger, "eval"),
	}
}

// fieldPlan is the scored stream of one field.
type fieldPlan struct {
	field     string
	spans     Spans
	recording SpanRecording
}

type queryPlan struct {
	fields []fieldPlan
}

func recordingOf(q SpanQuery) SpanRecording {
	switch q := q.(type) {
	case *TermQuery:
		return q.Recording
	case *WildcardQuery:
		return q.Recording
	case *RangeQuery:
		return q.Recording
	case *NearQuery:
		return q.Recording
	case *OrNearQuery:
		return q.Recording
	case *OrQuery:
		return q.Recording
	case *NotQuery:
		return q.Recording
	case *ExactQuery:
		return q.Recording
	case *SectionTypeFilterQuery:
		return max(q.Recording, recordingOf(q.Query))
	case *DocFilterQuery:
		return max(q.Recording, recordingOf(q.Query))
	case *MultiFieldAndQuery:
		return q.Recording
	case *AndQuery:
		return q.Recording
	case *MoreLikeThisQuery:
		return q.Recording
	}
	return RecordNone
}

// slopBound is the largest slop an index can honour in field.
func (e *evaluator) slopBound(field string) int {
	return slopBound(e.index, field)
}

func slopBound(cfg IndexConfig, field string) int {
	if field == FieldText {
		return cfg.ChunkOverlap
	}
	return cfg.BumpValue - 1
}

func (e *evaluator) fixSlop(field string, slop int) int {
	return min(slop, e.slopBound(field))
}

func (e *evaluator) termWeight(t Term, boost float64) float64 {
	return boost * e.sim.IDF(e.reader.DocFreq(t), e.numChunks)
}

func (e *evaluator) termSpans(t Term, weight float64) (Spans, error) {
	it, err := e.reader.TermPositions(t)
	if err != nil {
		return nil, err
	}
	return newTermSpans(t, it, weight, e.work), nil
}

// spans compiles a span-level query.
func (e *evaluator) spans(q SpanQuery) (Spans, error) {
	switch q := q.(type) {
	case *TermQuery:
		if err := e.terms.Add(q.Term); err != nil {
			return nil, err
		}
		return e.termSpans(q.Term, e.termWeight(q.Term, q.Boost()))

	case *WildcardQuery:
		terms, err := e.expand(wildcardExpansion(q))
		if err != nil {
			return nil, err
		}
		return e.unionTerms(terms, q.Boost())

	case *RangeQuery:
		terms, err := e.expand(rangeExpansion(q))
		if err != nil {
			return nil, err
		}
		return e.unionTerms(terms, q.Boost())

	case *NearQuery:
		clauses, err := e.clauseSpans(q.Clauses)
		if err != nil {
			return nil, err
		}
		return newNearSpans(clauses, e.fixSlop(q.Field(), q.Slop), q.InOrder, e.sim, e.work), nil

	case *OrNearQuery:
		clauses, err := e.clauseSpans(q.Clauses)
		if err != nil {
			return nil, err
		}
		return newOrNearSpans(clauses, e.fixSlop(q.Field(), q.Slop), e.sim), nil

	case *OrQuery:
		clauses, err := e.clauseSpans(q.Clauses)
		if err != nil {
			return nil, err
		}
		return newOrSpans(clauses), nil

	case *NotQuery:
		include, err := e.spans(q.Include)
		if err != nil {
			return nil, err
		}
		exclude, err := e.spans(q.Exclude)
		if err != nil {
			return nil, err
		}
		var docs *DocNumMap
		if q.Field() == FieldText {
			docs = e.docs
		}
		return newNotSpans(include, exclude, e.fixSlop(q.Field(), q.Slop), docs), nil

	case *ExactQuery:
		clauses, err := e.clauseSpans(q.Clauses)
		if err != nil {
			return nil, err
		}
		field := q.Field()
		start, err := e.termSpans(Term{Field: field, Text: FieldStartTerm}, 0)
		if err != nil {
			return nil, err
		}
		end, err := e.termSpans(Term{Field: field, Text: FieldEndTerm}, 0)
		if err != nil {
			return nil, err
		}
		all := append(append([]Spans{start}, clauses...), end)
		return newNearSpans(all, 0, true, e.sim, e.work), nil

	case *SectionTypeFilterQuery:
		inner, err := e.spans(q.Query)
		if err != nil {
			return nil, err
		}
		terms := make([]Term, len(q.Types))
		for i, st := range q.Types {
			terms[i] = Term{Field: FieldSectionType, Text: st}
		}
		allowed, err := chunkSet(e.reader, terms)
		if err != nil {
			return nil, err
		}
		return newFilterSpans(inner, chunkSetGate(allowed)), nil

	case *DocFilterQuery:
		inner, err := e.spans(q.Query)
		if err != nil {
			return nil, err
		}
		return newFilterSpans(inner, docSetGate(q.Docs, q.Exclude, e.docs)), nil

	case *MultiFieldAndQuery, *AndQuery, *MoreLikeThisQuery:
		return nil, configError("%T cannot be nested in a span clause", q)
	}
	return nil, configError("unsupported query node %T", q)
}

func (e *evaluator) clauseSpans(clauses []SpanQuery) ([]Spans, error) {
	out := make([]Spans, 0, len(clauses))
	for _, c := range clauses {
		s, err := e.spans(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *evaluator) unionTerms(terms []Term, boost float64) (Spans, error) {
	clauses := make([]Spans, 0, len(terms))
	for _, t := range terms {
		s, err := e.termSpans(t, e.termWeight(t, boost))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, s)
	}
	return newOrSpans(clauses), nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Document-level planning
// ───────────────────────────────────────────────────────────────────────────────

func (e *evaluator) plan(q SpanQuery) (*queryPlan, error) {
	p := &queryPlan{}
	if err := e.planWithin(p, q, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// planWithin appends the field streams of q restricted to filter (nil
// means every document).
func (e *evaluator) planWithin(p *queryPlan, q SpanQuery, filter *roaring.Bitmap) error {
	switch q := q.(type) {
	case *AndQuery:
		docs, err := e.docSet(q)
		if err != nil {
			return err
		}
		if filter != nil {
			docs.And(filter)
		}
		for _, c := range q.Clauses {
			if err := e.planWithin(p, c, docs); err != nil {
				return err
			}
		}
		return nil

	case *MultiFieldAndQuery:
		docs, err := e.docSet(q)
		if err != nil {
			return err
		}
		if filter != nil {
			docs.And(filter)
		}
		terms := e.analyzeTerms(q.Terms)
		for _, field := range q.Fields {
			clauses := make([]Spans, 0, len(terms))
			for _, text := range terms {
				t := Term{Field: field, Text: text}
				s, err := e.termSpans(t, e.termWeight(t, q.Boost()))
				if err != nil {
					return err
				}
				clauses = append(clauses, s)
			}
			s := newOrNearSpans(clauses, e.fixSlop(field, q.Slop), e.sim)
			p.fields = append(p.fields, fieldPlan{
				field:     field,
				spans:     e.restrict(s, docs),
				recording: q.Recording,
			})
		}
		return nil

	case *MoreLikeThisQuery:
		return e.planLike(p, q, filter)
	}

	s, err := e.spans(q)
	if err != nil {
		return err
	}
	p.fields = append(p.fields, fieldPlan{field: q.Field(), spans: e.restrict(s, filter), recording: recordingOf(q)})
	return nil
}

func (e *evaluator) restrict(s Spans, docs *roaring.Bitmap) Spans {
	s = newFilterSpans(s, liveGate(e.reader))
	if docs == nil {
		return s
	}
	return newFilterSpans(s, docSetGate(docs, false, e.docs))
}

// docSet returns the live documents q matches.
func (e *evaluator) docSet(q SpanQuery) (*roaring.Bitmap, error) {
	switch q := q.(type) {
	case *AndQuery:
		var docs *roaring.Bitmap
		for _, c := range q.Clauses {
			d, err := e.docSet(c)
			if err != nil {
				return nil, err
			}
			if docs == nil {
				docs = d
			} else {
				docs.And(d)
			}
			if docs.IsEmpty() {
				return docs, nil
			}
		}
		for _, ex := range q.Excludes {
			d, err := e.docSet(ex)
			if err != nil {
				return nil, err
			}
			docs.AndNot(d)
		}
		return docs, nil

	case *MultiFieldAndQuery:
		var docs *roaring.Bitmap
		for _, text := range e.analyzeTerms(q.Terms) {
			terms := make([]Term, len(q.Fields))
			for i, f := range q.Fields {
				terms[i] = Term{Field: f, Text: text}
				if err := e.terms.Add(terms[i]); err != nil {
					return nil, err
				}
			}
			chunks, err := chunkSet(e.reader, terms)
			if err != nil {
				return nil, err
			}
			d := e.docsOfChunks(chunks)
			if docs == nil {
				docs = d
			} else {
				docs.And(d)
			}
		}
		if docs == nil {
			docs = roaring.New()
		}
		return docs, nil

	case *MoreLikeThisQuery:
		return e.likeDocs(q)
	}

	s, err := e.spans(q)
	if err != nil {
		return nil, err
	}
	return docsOf(newFilterSpans(s, liveGate(e.reader)), e.docs)
}

func (e *evaluator) docsOfChunks(chunks *roaring.Bitmap) *roaring.Bitmap {
	docs := roaring.New()
	it := chunks.Iterator()
	for it.HasNext() {
		chunk := int(it.Next())
		if e.reader.IsDeleted(chunk) {
			continue
		}
		if doc := e.docs.DocNum(chunk); doc >= 0 {
			docs.Add(uint32(doc))
		}
	}
	return docs
}

// analyzeTerms splits and lowercases free-text terms and drops stop words.
// Folding and stemming are left to the rewrite passes.
func (e *evaluator) analyzeTerms(words []string) []string {
	var out []string
	for _, w := range words {
		for _, t := range Analyze(w) {
			if !e.stop.Contains(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// ───────────────────────────────────────────────────────────────────────────────
// Running a plan
// ───────────────────────────────────────────────────────────────────────────────

// hitSink receives deduplicated hits of plan field i.
type hitSink func(field int, doc int, hit SpanHit)

// run drives every field stream through its own DedupeQueue.
func (e *evaluator) run(p *queryPlan, sink hitSink) (DedupStats, error) {
	var total DedupStats
	for i, fp := range p.fields {
		q := NewDedupeQueue(e.index.ChunkSize, e.index.ChunkOverlap, e.sim, func(doc int, hit SpanHit) {
			sink(i, doc, hit)
		})
		cur, coord := -1, [2]int{1, 1}
		for ok := fp.spans.Next(); ok; ok = fp.spans.Next() {
			chunk := fp.spans.Chunk()
			if chunk != cur {
				if cur >= 0 {
					q.FinishChunk(e.chunkFactor(fp, cur, coord))
				}
				doc := e.docs.DocNum(chunk)
				if doc < 0 {
					failCorrupt("chunk %d lies past the last document", chunk)
				}
				q.StartChunk(chunk, doc)
				cur = chunk
			}
			if c, ok := fp.spans.(coordSpans); ok {
				coord[0], coord[1] = c.chunkCoord(chunk)
			}
			q.Add(fp.spans.Start(), fp.spans.End(), fp.spans.Score())
		}
		if err := fp.spans.Err(); err != nil {
			return total, err
		}
		if cur >= 0 {
			q.FinishChunk(e.chunkFactor(fp, cur, coord))
		}
		q.Flush()

		st := q.Stats()
		total.Emitted += st.Emitted
		total.Cancelled += st.Cancelled
		total.Damped += st.Damped
		total.Degraded += st.Degraded
		e.logger.Debug("field evaluated",
			slog.String("field", fp.field),
			slog.Int("emitted", st.Emitted),
			slog.Int("cancelled", st.Cancelled))
	}
	return total, nil
}

// chunkFactor is coord × lengthNorm for the hits of one chunk. coord holds
// the clause overlap seen at the chunk's last span.
func (e *evaluator) chunkFactor(fp fieldPlan, chunk int, coord [2]int) float64 {
	return e.sim.Coord(coord[0], coord[1]) * e.sim.LengthNorm(e.reader.FieldLength(chunk, fp.field))
}
