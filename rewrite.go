package chunkspan

import (
	"fmt"
	"log/slog"
	"slices"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY REWRITING
// ═══════════════════════════════════════════════════════════════════════════════
// A rewrite pass maps one node to its replacement. Rewrite walks the tree
// bottom-up, so a pass always sees children that were already rewritten,
// and rebuilds a parent only when one of its children changed:
//
//	near/*(the white whale)
//	  → StopWordFolder → near/*(white whale)
//	  → SlopFixup      → near/20(white whale)
//
// Nothing is modified in place. Alongside the new tree, Rewrite reports for
// every node of the result the pre-order index of the input node it came
// from, computed from the tree shape alone:
//
//	input:  0:inorder  1:the  2:white  3:whale
//	output: 0:inorder  1:the~white  2:whale        Origins = [0, -1, 3]
//
// Passing the result through the same passes again changes nothing.
// ═══════════════════════════════════════════════════════════════════════════════

// RewritePass rewrites a single node. Returning nil drops the node.
type RewritePass interface {
	Name() string
	RewriteNode(q SpanQuery) (SpanQuery, error)
}

// Rewritten is the result of Rewrite.
type Rewritten struct {
	Query SpanQuery
	// Origins[i] is the pre-order index in the input tree of the i-th node
	// of Query in pre-order, or -1 for a node a pass created.
	Origins []int
}

// NodeMap inverts Origins over an input tree of n nodes: the result maps
// each input index to its output index, or -1 when it did not survive.
func (r *Rewritten) NodeMap(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = -1
	}
	for out, in := range r.Origins {
		if in >= 0 && in < n && m[in] < 0 {
			m[in] = out
		}
	}
	return m
}

// Rewrite applies passes in order. A tree rewritten away entirely yields a
// nil Query.
func Rewrite(q SpanQuery, passes ...RewritePass) (*Rewritten, error) {
	n := countNodes(q)
	origins := make([]int, n)
	for i := range origins {
		origins[i] = i
	}
	for _, p := range passes {
		if q == nil {
			break
		}
		w := &rewriteWalk{pass: p}
		next, local, err := w.walk(q)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		composed := make([]int, len(local))
		for i, o := range local {
			composed[i] = -1
			if o >= 0 {
				composed[i] = origins[o]
			}
		}
		q, origins = next, composed
	}
	return &Rewritten{Query: q, Origins: origins}, nil
}

func countNodes(q SpanQuery) int {
	if q == nil {
		return 0
	}
	n := 1
	for _, c := range children(q) {
		n += countNodes(c)
	}
	return n
}

type rewriteWalk struct {
	pass RewritePass
	next int
}

func (w *rewriteWalk) walk(q SpanQuery) (SpanQuery, []int, error) {
	idx := w.next
	w.next++

	kids := children(q)
	newKids := make([]SpanQuery, len(kids))
	kidOrigins := make([][]int, len(kids))
	changed := false
	for i, k := range kids {
		nk, o, err := w.walk(k)
		if err != nil {
			return nil, nil, err
		}
		newKids[i], kidOrigins[i] = nk, o
		changed = changed || nk != k
	}

	node := q
	if changed {
		if node = withChildren(q, newKids); node == nil {
			return nil, nil, nil
		}
	}
	out, err := w.pass.RewriteNode(node)
	if err != nil || out == nil {
		return nil, nil, err
	}

	origins := []int{idx}
	if out == node && !changed {
		for _, o := range kidOrigins {
			origins = append(origins, o...)
		}
		return out, origins, nil
	}
	// A child of the result keeps its origins when it is one of the walked
	// children; anything else is new.
	for _, c := range children(out) {
		j := slices.IndexFunc(newKids, func(k SpanQuery) bool { return k != nil && k == c })
		if j < 0 {
			origins = append(origins, synthetic(countNodes(c))...)
			continue
		}
		origins = append(origins, kidOrigins[j]...)
	}
	return out, origins, nil
}

func synthetic(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = -1
	}
	return s
}

// withChildren returns a copy of q with new children, dropping nil ones.
// It returns nil when q cannot survive the drops.
func withChildren(q SpanQuery, kids []SpanQuery) SpanQuery {
	switch q := q.(type) {
	case *NearQuery:
		c := *q
		if c.Clauses = compact(kids); len(c.Clauses) == 0 {
			return nil
		}
		return &c
	case *OrNearQuery:
		c := *q
		if c.Clauses = compact(kids); len(c.Clauses) == 0 {
			return nil
		}
		return &c
	case *OrQuery:
		c := *q
		if c.Clauses = compact(kids); len(c.Clauses) == 0 {
			return nil
		}
		return &c
	case *ExactQuery:
		c := *q
		if c.Clauses = compact(kids); len(c.Clauses) == 0 {
			return nil
		}
		return &c
	case *NotQuery:
		if kids[0] == nil {
			return nil
		}
		if kids[1] == nil {
			return kids[0]
		}
		c := *q
		c.Include, c.Exclude = kids[0], kids[1]
		return &c
	case *SectionTypeFilterQuery:
		if kids[0] == nil {
			return nil
		}
		c := *q
		c.Query = kids[0]
		return &c
	case *DocFilterQuery:
		if kids[0] == nil {
			return nil
		}
		c := *q
		c.Query = kids[0]
		return &c
	case *AndQuery:
		c := *q
		c.Clauses = compact(kids[:len(q.Clauses)])
		c.Excludes = compact(kids[len(q.Clauses):])
		if len(c.Clauses) == 0 {
			return nil
		}
		return &c
	}
	return q
}

func compact(qs []SpanQuery) []SpanQuery {
	out := make([]SpanQuery, 0, len(qs))
	for _, q := range qs {
		if q != nil {
			out = append(out, q)
		}
	}
	return out
}

// ───────────────────────────────────────────────────────────────────────────────
// Slop fixup
// ───────────────────────────────────────────────────────────────────────────────

// SlopFixup bounds every slop by what the index can represent: the chunk
// overlap in the text field, bumpValue - 1 in metadata fields. Unbounded
// slop becomes exactly that bound.
type SlopFixup struct {
	Index IndexConfig
}

func (SlopFixup) Name() string { return "slop fixup" }

func (p SlopFixup) RewriteNode(q SpanQuery) (SpanQuery, error) {
	switch q := q.(type) {
	case *NearQuery:
		if b := slopBound(p.Index, q.Field()); q.Slop > b {
			c := *q
			c.Slop = b
			return &c, nil
		}
	case *OrNearQuery:
		if b := slopBound(p.Index, q.Field()); q.Slop > b {
			c := *q
			c.Slop = b
			return &c, nil
		}
	case *NotQuery:
		if b := slopBound(p.Index, q.Field()); q.Slop > b {
			c := *q
			c.Slop = b
			return &c, nil
		}
	case *MultiFieldAndQuery:
		b := p.Index.ChunkOverlap
		for _, f := range q.Fields {
			b = min(b, slopBound(p.Index, f))
		}
		if q.Slop > b {
			c := *q
			c.Slop = b
			return &c, nil
		}
	}
	return q, nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Term folding
// ───────────────────────────────────────────────────────────────────────────────

// foldable reports whether the terms of field are analysed text.
func foldable(cfg IndexConfig, field string) bool {
	switch field {
	case FieldKey, FieldDocInfo, FieldSectionType:
		return false
	}
	for _, f := range cfg.FacetFields {
		if f == field {
			return false
		}
	}
	return true
}

// mapTerms applies f to the plain terms of q.
func mapTerms(cfg IndexConfig, q SpanQuery, f func(string) string) SpanQuery {
	switch q := q.(type) {
	case *TermQuery:
		text := q.Term.Text
		if !foldable(cfg, q.Term.Field) || text == FieldStartTerm || text == FieldEndTerm || IsBigram(text) {
			return q
		}
		if text := f(q.Term.Text); text != q.Term.Text {
			c := *q
			c.Term.Text = text
			return &c
		}
	case *MultiFieldAndQuery:
		var terms []string
		for _, t := range q.Terms {
			for _, w := range Analyze(t) {
				terms = append(terms, f(w))
			}
		}
		if !slices.Equal(terms, q.Terms) {
			c := *q
			c.Terms = terms
			return &c
		}
	}
	return q
}

// AccentFolder maps query terms to their accent-folded form, matching an
// index built with FoldAccents.
type AccentFolder struct {
	Index IndexConfig
}

func (AccentFolder) Name() string { return "accent folding" }

func (p AccentFolder) RewriteNode(q SpanQuery) (SpanQuery, error) {
	switch w := q.(type) {
	case *WildcardQuery:
		if foldable(p.Index, w.FieldName) {
			if pat := FoldAccents(w.Pattern); pat != w.Pattern {
				c := *w
				c.Pattern = pat
				return &c, nil
			}
		}
		return q, nil
	}
	return mapTerms(p.Index, q, FoldAccents), nil
}

// PluralFolder maps query terms through a plural map, matching an index
// built with the same map.
type PluralFolder struct {
	Index   IndexConfig
	Plurals WordMap
}

func (PluralFolder) Name() string { return "plural folding" }

func (p PluralFolder) RewriteNode(q SpanQuery) (SpanQuery, error) {
	if len(p.Plurals) == 0 {
		return q, nil
	}
	return mapTerms(p.Index, q, p.Plurals.Lookup), nil
}

// StemFolder stems query terms for an index built with EnableStemming.
type StemFolder struct {
	Index IndexConfig
}

func (StemFolder) Name() string { return "stemming" }

func (p StemFolder) RewriteNode(q SpanQuery) (SpanQuery, error) {
	return mapTerms(p.Index, q, Stem), nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Stop words
// ───────────────────────────────────────────────────────────────────────────────

// StopWordFolder rewrites stop words into the bi-grams the indexer wrote.
// In a phrase a stop word joins the preceding plain term, or the following
// one when the preceding term is already a bi-gram:
//
//	"cat of the hat" → cat~of the~hat
//
// Elsewhere a bare stop word can never match and is dropped.
type StopWordFolder struct {
	Index IndexConfig
	Stop  StopSet
}

func (StopWordFolder) Name() string { return "stop words" }

func (p StopWordFolder) RewriteNode(q SpanQuery) (SpanQuery, error) {
	switch q := q.(type) {
	case *NearQuery:
		if q.InOrder && q.Slop == 0 {
			return p.phrase(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
		}
		return p.dropStops(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
	case *ExactQuery:
		return p.phrase(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
	case *OrNearQuery:
		return p.dropStops(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
	case *OrQuery:
		return p.dropStops(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
	case *AndQuery:
		return p.dropStops(q, q.Clauses, func(cl []SpanQuery) SpanQuery { c := *q; c.Clauses = cl; return &c }), nil
	}
	return q, nil
}

// plainTerm returns q as a term query eligible for stop-word handling.
func (p StopWordFolder) plainTerm(q SpanQuery) (*TermQuery, bool) {
	t, ok := q.(*TermQuery)
	if !ok || !foldable(p.Index, t.Term.Field) || IsBigram(t.Term.Text) {
		return nil, false
	}
	if t.Term.Text == FieldStartTerm || t.Term.Text == FieldEndTerm {
		return nil, false
	}
	return t, true
}

func (p StopWordFolder) isStop(q SpanQuery) bool {
	t, ok := p.plainTerm(q)
	return ok && p.Stop.Contains(t.Term.Text)
}

func withText(t *TermQuery, text string) *TermQuery {
	c := *t
	c.Term.Text = text
	return &c
}

func (p StopWordFolder) phrase(q SpanQuery, clauses []SpanQuery, rebuild func([]SpanQuery) SpanQuery) SpanQuery {
	out := make([]SpanQuery, 0, len(clauses))
	var pending *TermQuery
	changed := false
	for i, c := range clauses {
		t, plain := p.plainTerm(c)
		stop := plain && p.Stop.Contains(t.Term.Text)
		switch {
		case pending != nil && plain:
			out = append(out, withText(t, Bigram(pending.Term.Text, t.Term.Text)))
			pending = nil
			changed = true
		case stop && p.mergeable(out):
			last := out[len(out)-1].(*TermQuery)
			out[len(out)-1] = withText(last, Bigram(last.Term.Text, t.Term.Text))
			changed = true
		case stop && i+1 < len(clauses):
			if _, ok := p.plainTerm(clauses[i+1]); ok {
				pending = t
			}
			changed = true
		case stop:
			changed = true
		default:
			out = append(out, c)
		}
	}
	if !changed {
		return q
	}
	if len(out) == 0 {
		return nil
	}
	return rebuild(out)
}

// mergeable reports whether the last clause can absorb a following stop word.
func (p StopWordFolder) mergeable(out []SpanQuery) bool {
	if len(out) == 0 {
		return false
	}
	t, ok := p.plainTerm(out[len(out)-1])
	return ok && !p.Stop.Contains(t.Term.Text)
}

func (p StopWordFolder) dropStops(q SpanQuery, clauses []SpanQuery, rebuild func([]SpanQuery) SpanQuery) SpanQuery {
	out := make([]SpanQuery, 0, len(clauses))
	for _, c := range clauses {
		if !p.isStop(c) {
			out = append(out, c)
		}
	}
	switch {
	case len(out) == len(clauses):
		return q
	case len(out) == 0:
		return nil
	}
	return rebuild(out)
}

// ───────────────────────────────────────────────────────────────────────────────
// Spelling
// ───────────────────────────────────────────────────────────────────────────────

// SpellingRewriter replaces text terms the index does not know with their
// best spelling suggestion.
type SpellingRewriter struct {
	Speller *Speller
	Logger  *slog.Logger
}

func (SpellingRewriter) Name() string { return "spelling" }

func (p SpellingRewriter) RewriteNode(q SpanQuery) (SpanQuery, error) {
	t, ok := q.(*TermQuery)
	if !ok || t.Term.Field != FieldText || IsBigram(t.Term.Text) {
		return q, nil
	}
	best, ok := p.Speller.Best(t.Term)
	if !ok {
		return q, nil
	}
	componentLogger(p.Logger, "spell").Debug("term respelled",
		slog.String("from", t.Term.Text), slog.String("to", best))
	return withText(t, best), nil
}

// DefaultPasses returns the rewrite chain for an index built with cfg.
func DefaultPasses(cfg IndexConfig, plurals WordMap) []RewritePass {
	var passes []RewritePass
	if cfg.FoldAccents {
		passes = append(passes, AccentFolder{Index: cfg})
	}
	if len(plurals) > 0 {
		passes = append(passes, PluralFolder{Index: cfg, Plurals: plurals})
	}
	if cfg.EnableStemming {
		passes = append(passes, StemFolder{Index: cfg})
	}
	passes = append(passes,
		StopWordFolder{Index: cfg, Stop: NewStopSet(cfg.StopWords)},
		SlopFixup{Index: cfg},
	)
	return passes
}
