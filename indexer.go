package chunkspan

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHUNKING INDEXER
// ═══════════════════════════════════════════════════════════════════════════════
// A document is written as N overlapping text chunks followed by one doc-info
// chunk. With chunkSize=6 and chunkOverlap=2 (step 4):
//
//	words:   w0 w1 w2 w3 w4 w5 w6 w7 w8 w9
//	chunk 0: w0 w1 w2 w3 w4 w5
//	chunk 1:             w4 w5 w6 w7 w8 w9
//	chunk 2: doc-info (key, metadata)         ← document id = 2
//
// Every chunk numbers its words from 0, so a phrase inside the overlap is
// indexed twice: w4 w5 at chunk 0 offsets 4-5 and chunk 1 offsets 0-1. The
// dedup engine is what makes that invisible to users.
// ═══════════════════════════════════════════════════════════════════════════════

// Section is a run of document text from one source node.
type Section struct {
	Type string
	Node int
	Text string
}

// MetaField is a named, possibly multi-valued metadata field.
type MetaField struct {
	Name   string
	Values []string
}

// Document is a logical document before chunking.
type Document struct {
	Key      string
	Sections []Section
	Meta     []MetaField
}

// Indexer writes documents into a MemoryIndex.
type Indexer struct {
	index    *MemoryIndex
	cfg      IndexConfig
	analyzer AnalyzerConfig
	stop     StopSet
	facets   map[string]bool
	docs     map[string]docSpan
	logger   *slog.Logger
}

type docSpan struct {
	first, docInfo int
}

// NewIndexer validates cfg and returns an indexer writing to index.
func NewIndexer(index *MemoryIndex, cfg IndexConfig, logger *slog.Logger) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	facets := make(map[string]bool, len(cfg.FacetFields))
	for _, f := range cfg.FacetFields {
		facets[f] = true
	}
	analyzer := AnalyzerConfig{EnableStemming: cfg.EnableStemming, FoldAccents: cfg.FoldAccents}
	if cfg.PluralMap != "" {
		plurals, err := LoadWordMap(cfg.PluralMap)
		if err != nil {
			return nil, err
		}
		analyzer.Plurals = plurals
	}
	return &Indexer{
		index:    index,
		cfg:      cfg,
		analyzer: analyzer,
		stop:     NewStopSet(cfg.StopWords),
		facets:   facets,
		docs:     make(map[string]docSpan),
		logger:   componentLogger(logger, "indexer"),
	}, nil
}

// sourceWord is one word of the concatenated section stream.
type sourceWord struct {
	gap      string // text between the previous word and this one
	surface  string
	term     string
	node     int
	nodeWord int
	section  string
}

// Add chunks and indexes doc. Changes become visible on Commit.
func (ix *Indexer) Add(doc Document) error {
	if doc.Key == "" {
		return configError("document key must not be empty")
	}
	if _, dup := ix.docs[doc.Key]; dup {
		return configError("duplicate document key %q", doc.Key)
	}

	words, tail := ix.collectWords(doc.Sections)
	first := ix.index.MaxChunk()
	step := ix.cfg.ChunkSize - ix.cfg.ChunkOverlap
	for start := 0; start < len(words); start += step {
		end := min(start+ix.cfg.ChunkSize, len(words))
		last := end == len(words)
		ix.index.appendChunk(ix.textChunk(words[start:end], tail, last))
		if last {
			break
		}
	}

	docInfo := ix.index.appendChunk(ix.docInfoChunk(doc))
	ix.docs[doc.Key] = docSpan{first: first, docInfo: docInfo}
	ix.logger.Debug("indexed document",
		slog.String("key", doc.Key),
		slog.Int("words", len(words)),
		slog.Int("chunks", docInfo-first))
	return nil
}

// Delete marks every chunk of the document with key deleted.
func (ix *Indexer) Delete(key string) bool {
	span, ok := ix.docs[key]
	if !ok {
		return false
	}
	ix.index.deleteChunks(span.first, span.docInfo, true)
	delete(ix.docs, key)
	return true
}

// Commit publishes pending writes.
func (ix *Indexer) Commit() { ix.index.Commit() }

func (ix *Indexer) collectWords(sections []Section) ([]sourceWord, string) {
	var words []sourceWord
	var gap strings.Builder
	nodeWords := make(map[int]int)
	for si, sec := range sections {
		text := scrubMarkers(sec.Text)
		if si > 0 {
			gap.WriteByte(' ')
		}
		nodeWord := nodeWords[sec.Node]
		marked := StripMarkers(text, ix.analyzer)
		prev := 0
		for _, w := range marked.Words {
			gap.WriteString(marked.Plain[prev:w.Start])
			words = append(words, sourceWord{
				gap:      gap.String(),
				surface:  marked.Plain[w.Start:w.End],
				term:     w.Term,
				node:     sec.Node,
				nodeWord: nodeWord,
				section:  sec.Type,
			})
			gap.Reset()
			nodeWord++
			prev = w.End
		}
		nodeWords[sec.Node] = nodeWord
		gap.WriteString(marked.Plain[prev:])
	}
	return words, gap.String()
}

// scrubMarkers replaces marker runes in source text so they cannot be
// mistaken for structure.
func scrubMarkers(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case NodeMarker, BumpMarker, FieldStartMarker, FieldEndMarker, utf8.RuneError:
			return ' '
		}
		return r
	}, text)
}

func (ix *Indexer) textChunk(words []sourceWord, tail string, last bool) chunkData {
	var text strings.Builder
	sections := make(map[string]bool)
	nodeTypes := make(map[int]string)
	tokens := make([]indexedToken, 0, len(words)+4)

	for i, w := range words {
		if i == 0 || w.node != words[i-1].node {
			if i > 0 {
				text.WriteString(w.gap)
			}
			text.WriteString(NodeMarkerText(w.node, w.nodeWord))
		} else {
			text.WriteString(w.gap)
		}
		text.WriteString(w.surface)
		if w.section != "" {
			sections[w.section] = true
			nodeTypes[w.node] = w.section
		}
	}
	if last {
		text.WriteString(tail)
	}

	tokens = ix.appendTokens(tokens, FieldText, words)
	for st := range sections {
		tokens = append(tokens, indexedToken{field: FieldSectionType, term: st, pos: 0})
	}
	stored := map[string]string{FieldText: text.String()}
	if len(nodeTypes) > 0 {
		stored[storedSectionsField] = encodeNodeTypes(nodeTypes)
	}
	return chunkData{
		stored:  stored,
		tokens:  tokens,
		lengths: map[string]int{FieldText: len(words)},
	}
}

// appendTokens emits the terms of a word run. Stop words are indexed only
// as bi-grams with their neighbours, at the position of the left word.
func (ix *Indexer) appendTokens(tokens []indexedToken, field string, words []sourceWord) []indexedToken {
	for i, w := range words {
		stop := ix.stop.Contains(w.term)
		if !stop {
			tokens = append(tokens, indexedToken{field: field, term: w.term, pos: i})
		}
		if i+1 < len(words) && (stop || ix.stop.Contains(words[i+1].term)) {
			tokens = append(tokens, indexedToken{field: field, term: Bigram(w.term, words[i+1].term), pos: i})
		}
	}
	return tokens
}

func (ix *Indexer) docInfoChunk(doc Document) chunkData {
	stored := map[string]string{FieldKey: doc.Key}
	lengths := make(map[string]int)
	tokens := []indexedToken{{field: FieldKey, term: doc.Key, pos: 0}}

	for _, mf := range doc.Meta {
		if mf.Name == "" || len(mf.Values) == 0 {
			continue
		}
		marked := ix.markValues(mf.Values)
		stored[mf.Name] = marked
		if ix.facets[mf.Name] {
			for _, v := range mf.Values {
				if v = strings.TrimSpace(v); v != "" {
					tokens = append(tokens, indexedToken{field: mf.Name, term: v, pos: 0})
				}
			}
			lengths[mf.Name] = len(mf.Values)
			continue
		}
		before := len(tokens)
		tokens = ix.metaTokens(tokens, mf.Name, marked)
		lengths[mf.Name] = len(tokens) - before
	}
	return chunkData{stored: stored, tokens: tokens, lengths: lengths, docInfo: true}
}

// markValues wraps each value in boundary markers and separates values by a
// bump so no proximity match can span two values.
func (ix *Indexer) markValues(values []string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(BumpMarkerText(ix.cfg.BumpValue))
		}
		b.WriteRune(FieldStartMarker)
		b.WriteString(scrubMarkers(v))
		b.WriteRune(FieldEndMarker)
	}
	return b.String()
}

func (ix *Indexer) metaTokens(tokens []indexedToken, field, marked string) []indexedToken {
	words := StripMarkers(marked, ix.analyzer).Words
	for i, w := range words {
		if w.Boundary != BoundaryNone {
			tokens = append(tokens, indexedToken{field: field, term: w.Term, pos: w.Pos})
			continue
		}
		stop := ix.stop.Contains(w.Term)
		if !stop {
			tokens = append(tokens, indexedToken{field: field, term: w.Term, pos: w.Pos})
		}
		if i+1 < len(words) {
			next := words[i+1]
			if next.Boundary == BoundaryNone && next.Pos == w.Pos+1 && (stop || ix.stop.Contains(next.Term)) {
				tokens = append(tokens, indexedToken{field: field, term: Bigram(w.Term, next.Term), pos: w.Pos})
			}
		}
	}
	return tokens
}

// splitValues returns the plain values of a marked multi-valued field.
func splitValues(marked string) []string {
	var values []string
	for {
		start := strings.IndexRune(marked, FieldStartMarker)
		if start < 0 {
			break
		}
		rest := marked[start+utf8.RuneLen(FieldStartMarker):]
		end := strings.IndexRune(rest, FieldEndMarker)
		if end < 0 {
			values = append(values, rest)
			break
		}
		values = append(values, rest[:end])
		marked = rest[end+utf8.RuneLen(FieldEndMarker):]
	}
	if values == nil && marked != "" {
		values = []string{marked}
	}
	return values
}

// encodeNodeTypes renders node section types as "3=chapter;4=note".
func encodeNodeTypes(types map[int]string) string {
	nodes := make([]int, 0, len(types))
	for n := range types {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = strconv.Itoa(n) + "=" + types[n]
	}
	return strings.Join(parts, ";")
}

func decodeNodeTypes(s string) map[int]string {
	types := make(map[int]string)
	for _, part := range strings.Split(s, ";") {
		node, typ, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(node); err == nil {
			types[n] = typ
		}
	}
	return types
}
