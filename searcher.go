package chunkspan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SEARCHER
// ═══════════════════════════════════════════════════════════════════════════════
// A Searcher answers queries against the current reader set of one index.
// Each Search runs start to finish on the calling goroutine:
//
//	rewrite ─▶ validate ─▶ plan ─▶ run (dedup per field) ─▶ score ─▶ rank
//	                                                         ├──▶ group
//	                                                         └──▶ spell
//
// Many Searches may run at once. They share only the reader set and the
// artifact cache, both read-only once built. Swap installs a new reader set
// with a single pointer store, so a query sees either the old set or the
// new one, never a mix.
//
// REFRESH:
// --------
// At most once per PollInterval, a Search checks whether the index moved to
// a new generation (through the reopen function, or the generation of the
// current reader). If so the Searcher swaps in the new reader and drops
// every cached artifact of older generations.
// ═══════════════════════════════════════════════════════════════════════════════

// Request is one query with its result shaping options.
type Request struct {
	Query SpanQuery

	StartDoc int
	// MaxDocs caps the hits returned; 0 uses Limits.MaxDocs.
	MaxDocs    int
	SortFields []SortField
	Groups     []GroupSpec

	// MaxSnippets caps snippets per document field: 0 uses
	// Limits.MaxSnippets, a negative value keeps all.
	MaxSnippets int
	// MaxContext is the snippet character budget; 0 uses Limits.MaxContext.
	MaxContext int
	// SnippetsInDocOrder keeps the first snippets of a document instead of
	// the best ones.
	SnippetsInDocOrder bool

	// BoostFile names a "key|boost" file applied to document scores.
	BoostFile string
	// Spelling asks for suggestions for query terms rare in the index.
	Spelling bool
	// Respell replaces unknown query terms by their best suggestion before
	// evaluation.
	Respell bool
}

// readerSet is everything the Searcher derives from one reader generation.
type readerSet struct {
	reader     IndexReader
	generation uint64
	docs       *DocNumMap
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithMetrics records query and cache metrics.
func WithMetrics(m *Metrics) SearcherOption {
	return func(s *Searcher) { s.metrics = m }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

// WithCache shares an artifact cache between Searchers.
func WithCache(c *ArtifactCache) SearcherOption {
	return func(s *Searcher) { s.cache = c }
}

// WithReopen sets how the Searcher reopens its index when polling for a new
// generation.
func WithReopen(open func(path string) (IndexReader, error)) SearcherOption {
	return func(s *Searcher) { s.reopen = open }
}

// Searcher evaluates queries against one index.
type Searcher struct {
	path     string
	cfg      Config
	analyzer AnalyzerConfig
	plurals  WordMap

	current  atomic.Pointer[readerSet]
	swapMu   sync.Mutex
	lastPoll atomic.Int64
	reopen   func(path string) (IndexReader, error)

	cache   *ArtifactCache
	metrics *Metrics
	logger  *slog.Logger
}

// NewSearcher returns a Searcher over r. path identifies the index in the
// artifact cache and is passed to the reopen function.
func NewSearcher(path string, r IndexReader, cfg Config, opts ...SearcherOption) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Searcher{path: path, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = componentLogger(s.logger, "searcher")
	if s.cache == nil {
		s.cache = NewArtifactCache(cfg.Cache, s.metrics, s.logger)
	}
	if cfg.Index.PluralMap != "" {
		plurals, err := LoadWordMap(cfg.Index.PluralMap)
		if err != nil {
			return nil, fmt.Errorf("loading plural map: %w", err)
		}
		s.plurals = plurals
	}
	s.analyzer = AnalyzerConfig{
		EnableStemming: cfg.Index.EnableStemming,
		FoldAccents:    cfg.Index.FoldAccents,
		Plurals:        s.plurals,
	}
	if err := s.Swap(r); err != nil {
		return nil, err
	}
	s.lastPoll.Store(time.Now().UnixNano())
	return s, nil
}

// Swap installs r as the current reader. Queries already running finish on
// the reader they started with.
func (s *Searcher) Swap(r IndexReader) error {
	gen := r.Generation()
	s.cache.Advance(s.path, gen)
	docs, err := cachedArtifact(s.cache, s.path, gen, "docnums", func() (*DocNumMap, error) {
		return BuildDocNumMap(r, s.cfg.Index)
	})
	if err != nil {
		return err
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if cur := s.current.Load(); cur != nil && cur.reader == r && cur.generation == gen {
		return nil
	}
	s.current.Store(&readerSet{reader: r, generation: gen, docs: docs})
	s.logger.Info("reader installed",
		slog.String("path", s.path),
		slog.Uint64("generation", gen),
		slog.Int("documents", docs.Len()))
	return nil
}

// Generation is the generation of the current reader set.
func (s *Searcher) Generation() uint64 { return s.current.Load().generation }

// maybeRefresh swaps in a newer generation, checking at most once per poll
// interval. Failures keep the current reader.
func (s *Searcher) maybeRefresh() {
	interval := s.cfg.Cache.PollInterval
	if interval <= 0 {
		return
	}
	now := time.Now().UnixNano()
	last := s.lastPoll.Load()
	if time.Duration(now-last) < interval || !s.lastPoll.CompareAndSwap(last, now) {
		return
	}

	cur := s.current.Load()
	next := cur.reader
	if s.reopen != nil {
		r, err := s.reopen(s.path)
		if err != nil {
			s.logger.Warn("reopen failed", slog.String("path", s.path), slog.Any("error", err))
			return
		}
		next = r
	}
	if next == cur.reader && next.Generation() == cur.generation {
		return
	}
	if err := s.Swap(next); err != nil {
		s.logger.Error("refresh failed", slog.String("path", s.path), slog.Any("error", err))
	}
}

// Search evaluates req. Failures are *QueryError values matching one of
// ErrExcessiveWork, ErrConfiguration or ErrIndexCorruption.
func (s *Searcher) Search(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			cp, ok := p.(*corruptionPanic)
			if !ok {
				panic(p)
			}
			res, err = nil, cp.err
		}
		err = classify(err)
		s.metrics.observeQuery(outcome(err), time.Since(start))
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrIndexCorruption) {
				level = slog.LevelError
			}
			s.logger.Log(ctx, level, "query failed", slog.String("path", s.path), slog.Any("error", err))
		}
	}()

	s.maybeRefresh()
	rs := s.current.Load()
	if s.cfg.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Limits.Timeout)
		defer cancel()
	}
	if req.Query == nil {
		return nil, configError("empty query")
	}
	if req.StartDoc < 0 || req.MaxDocs < 0 {
		return nil, configError("negative paging %d/%d", req.StartDoc, req.MaxDocs)
	}

	passes := DefaultPasses(s.cfg.Index, s.plurals)
	if req.Respell {
		sp, err := s.speller(rs)
		if err != nil {
			return nil, err
		}
		// Respell after stop-word folding, before the slop fixup.
		n := len(passes)
		passes = append(passes[:n-1:n-1], SpellingRewriter{Speller: sp, Logger: s.logger}, passes[n-1])
	}
	rw, err := Rewrite(req.Query, passes...)
	if err != nil {
		return nil, err
	}
	res = &Result{StartDoc: req.StartDoc, EndDoc: req.StartDoc}
	if rw.Query == nil {
		return res, nil // nothing but stop words
	}
	if err := validate(rw.Query); err != nil {
		return nil, err
	}
	s.logger.Debug("query rewritten", slog.String("from", req.Query.String()), slog.String("to", rw.Query.String()))

	ev := newEvaluator(ctx, rs.reader, s.cfg, rs.docs, s.analyzer, s.logger)
	plan, err := ev.plan(rw.Query)
	if err != nil {
		return nil, err
	}

	maxSnippets := req.MaxSnippets
	if maxSnippets == 0 {
		maxSnippets = s.cfg.Limits.MaxSnippets
	}
	scorer := newDocScorer(plan.fields, max(maxSnippets, 0), !req.SnippetsInDocOrder)
	stats, err := ev.run(plan, scorer.add)
	if err != nil {
		return nil, err
	}
	s.metrics.observeDedup(stats)
	res.Stats = stats

	boosts, err := s.boosts(rs, req.BoostFile)
	if err != nil {
		return nil, err
	}
	maxContext := req.MaxContext
	if maxContext == 0 {
		maxContext = s.cfg.Limits.MaxContext
	}
	loader := &docLoader{reader: rs.reader, docs: rs.docs, analyzer: s.analyzer, terms: ev.terms, maxContext: maxContext}
	hits := scorer.hits(ev.sim, boosts, rs.reader, loader)

	order, err := s.order(rs, req.SortFields)
	if err != nil {
		return nil, err
	}
	maxDocs := req.MaxDocs
	if maxDocs == 0 {
		maxDocs = s.cfg.Limits.MaxDocs
	}
	size := 0
	if maxDocs > 0 {
		size = req.StartDoc + maxDocs
	}
	queue := NewDocHitQueue(size, order)
	for _, h := range hits {
		queue.Insert(h)
	}
	ranked := queue.Drain()
	res.TotalDocs = len(hits)
	if req.StartDoc < len(ranked) {
		res.Hits = ranked[req.StartDoc:]
	}
	res.EndDoc = req.StartDoc + len(res.Hits)

	for _, spec := range req.Groups {
		gd, err := s.groupData(rs, spec.Field)
		if err != nil {
			return nil, err
		}
		res.Groups = append(res.Groups, gd.groupResult(spec, hits, order, queue.MaxScore()))
	}

	if req.Spelling {
		if res.Suggestions, err = s.suggest(rs, rw.Query); err != nil {
			return nil, err
		}
	}

	s.logger.Info("query evaluated",
		slog.String("query", rw.Query.String()),
		slog.Int("total", res.TotalDocs),
		slog.Int("returned", len(res.Hits)),
		slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExcessiveWork):
		return "excessive_work"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "corruption"
}

// ───────────────────────────────────────────────────────────────────────────────
// Per-generation artifacts
// ───────────────────────────────────────────────────────────────────────────────

func (s *Searcher) groupData(rs *readerSet, field string) (*GroupData, error) {
	return cachedArtifact(s.cache, s.path, rs.generation, "groups:"+field, func() (*GroupData, error) {
		return BuildGroupData(rs.reader, rs.docs, field, s.logger)
	})
}

func (s *Searcher) sortData(rs *readerSet, field string) (*SortData, error) {
	return cachedArtifact(s.cache, s.path, rs.generation, "sort:"+field, func() (*SortData, error) {
		return BuildSortData(rs.reader, rs.docs, field), nil
	})
}

func (s *Searcher) speller(rs *readerSet) (*Speller, error) {
	return cachedArtifact(s.cache, s.path, rs.generation, "speller", func() (*Speller, error) {
		return NewSpeller(rs.reader, s.cfg.Spell), nil
	})
}

func (s *Searcher) boosts(rs *readerSet, path string) (BoostSet, error) {
	if path == "" {
		return nil, nil
	}
	return cachedArtifact(s.cache, s.path, rs.generation, "boost:"+path, func() (BoostSet, error) {
		entries, err := LoadBoostFile(path, s.logger)
		if err != nil {
			return nil, err
		}
		return ApplyBoosts(rs.reader, entries, s.logger)
	})
}

func (s *Searcher) order(rs *readerSet, fields []SortField) (hitOrder, error) {
	if len(fields) == 0 {
		return scoreOrder, nil
	}
	data := make([]*SortData, len(fields))
	for i, f := range fields {
		d, err := s.sortData(rs, f.Field)
		if err != nil {
			return nil, err
		}
		data[i] = d
	}
	return sortOrder(fields, data), nil
}

// suggest offers spellings for text terms of q that fewer than MinDocFreq
// chunks contain.
func (s *Searcher) suggest(rs *readerSet, q SpanQuery) (map[string][]Suggestion, error) {
	sp, err := s.speller(rs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Suggestion)
	stop := NewStopSet(s.cfg.Index.StopWords)
	var walk func(SpanQuery)
	walk = func(q SpanQuery) {
		if t, ok := q.(*TermQuery); ok && t.Term.Field == FieldText {
			for _, word := range queryWords(t.Term.Text) {
				if _, done := out[word]; done || stop.Contains(word) {
					continue
				}
				if rs.reader.DocFreq(Term{Field: FieldText, Text: word}) < max(s.cfg.Spell.MinDocFreq, 1) {
					if sugg := sp.Suggest(word); len(sugg) > 0 {
						out[word] = sugg
					}
				}
			}
		}
		for _, c := range children(q) {
			walk(c)
		}
	}
	walk(q)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// queryWords splits a bi-gram back into its words.
func queryWords(text string) []string {
	if !IsBigram(text) {
		return []string{text}
	}
	return strings.Split(text, BigramSeparator)
}
