package chunkspan

import (
	"sort"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNIPPETS
// ═══════════════════════════════════════════════════════════════════════════════
// A snippet is rebuilt from the stored text of the chunk a hit was found in.
// The hit's words are marked, then context words are added alternately on
// the left and the right while the text stays within maxContext characters:
//
//	stored:   ... it was the white whale that Ahab ...
//	hit:      [white whale]                    (positions 41-43)
//	snippet:  it was the <hit><term>white</term> <term>whale</term></hit> that Ahab
//
// A hit longer than the budget is kept whole; the budget then grows to fit
// it rather than cutting a matched term out. Context never crosses a field
// value boundary.
//
// TERM MODES:
// -----------
//
//	RecordNone     no snippets
//	RecordSpans    <term> marks query terms inside the hit
//	RecordContext  ... and query terms in the surrounding context
//	RecordAll      same as context within a snippet
// ═══════════════════════════════════════════════════════════════════════════════

const (
	hitStartTag  = "<hit>"
	hitEndTag    = "</hit>"
	termStartTag = "<term>"
	termEndTag   = "</term>"
)

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// docLoader materialises the lazy parts of DocHits for one query.
type docLoader struct {
	reader     IndexReader
	docs       *DocNumMap
	analyzer   AnalyzerConfig
	terms      *TermMap
	maxContext int
}

func (l *docLoader) snippets(h *DocHit) []Snippet {
	type ranked struct {
		field string
		mode  SpanRecording
		hit   SpanHit
	}
	var all []ranked
	for _, fs := range h.spans {
		if fs.recording == RecordNone {
			continue
		}
		for _, hit := range fs.hits {
			all = append(all, ranked{field: fs.field, mode: fs.recording, hit: hit})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].hit.Score != all[j].hit.Score {
			return all[i].hit.Score > all[j].hit.Score
		}
		if all[i].field != all[j].field {
			return all[i].field < all[j].field
		}
		return positionLess(all[i].hit, all[j].hit)
	})

	out := make([]Snippet, 0, len(all))
	texts := make(map[int]MarkedText)
	for _, r := range all {
		chunk := r.hit.Chunk
		mt, ok := texts[chunk]
		if !ok {
			raw, _ := l.reader.FieldValue(chunk, r.field)
			mt = StripMarkers(raw, l.analyzer)
			texts[chunk] = mt
		}
		s, ok := l.render(mt, r.field, r.hit, r.mode)
		if !ok {
			continue
		}
		if r.field == FieldText {
			s.SectionType = l.sectionType(chunk, s.Start.Node)
		}
		s.Rank = len(out)
		out = append(out, s)
	}
	return out
}

// render builds the snippet of one hit, or reports false when its positions
// are not in the stored text.
func (l *docLoader) render(mt MarkedText, field string, hit SpanHit, mode SpanRecording) (Snippet, bool) {
	words := mt.Words
	first := sort.Search(len(words), func(i int) bool { return words[i].Pos >= hit.Start })
	last := sort.Search(len(words), func(i int) bool { return words[i].Pos >= hit.End }) - 1
	if first >= len(words) || last < first {
		return Snippet{}, false
	}
	// Boundary tokens of an exact match are part of the hit but not its text.
	for first < last && words[first].Boundary != BoundaryNone {
		first++
	}
	for last > first && words[last].Boundary != BoundaryNone {
		last--
	}

	lo, hi := first, last
	budget := max(l.maxContext, words[last].End-words[first].Start)
	width := func(a, b int) int { return words[b].End - words[a].Start }
	for grew := true; grew; {
		grew = false
		if lo > 0 && words[lo-1].Boundary == BoundaryNone && width(lo-1, hi) <= budget {
			lo--
			grew = true
		}
		if hi+1 < len(words) && words[hi+1].Boundary == BoundaryNone && width(lo, hi+1) <= budget {
			hi++
			grew = true
		}
	}

	var b strings.Builder
	cursor := words[lo].Start
	for i := lo; i <= hi; i++ {
		w := words[i]
		if w.Boundary != BoundaryNone {
			continue
		}
		b.WriteString(markupEscaper.Replace(mt.Plain[cursor:w.Start]))
		if i == first {
			b.WriteString(hitStartTag)
		}
		inHit := i >= first && i <= last
		marked := l.marks(field, w.Term, inHit, mode)
		if marked {
			b.WriteString(termStartTag)
		}
		b.WriteString(markupEscaper.Replace(mt.Plain[w.Start:w.End]))
		if marked {
			b.WriteString(termEndTag)
		}
		if i == last {
			b.WriteString(hitEndTag)
		}
		cursor = w.End
	}

	return Snippet{
		Score: hit.Score,
		Field: field,
		Text:  b.String(),
		Start: Address{Node: words[first].Node, Word: words[first].NodeWord},
		End:   Address{Node: words[last].Node, Word: words[last].NodeWord},
	}, true
}

func (l *docLoader) marks(field, term string, inHit bool, mode SpanRecording) bool {
	switch mode {
	case RecordSpans:
		return inHit && l.terms.containsWord(field, term)
	case RecordContext, RecordAll:
		return l.terms.containsWord(field, term)
	}
	return false
}

func (l *docLoader) sectionType(chunk, node int) string {
	raw, ok := l.reader.FieldValue(chunk, storedSectionsField)
	if !ok {
		return ""
	}
	return decodeNodeTypes(raw)[node]
}

// meta returns the stored metadata values of doc, without the reserved
// fields.
func (l *docLoader) meta(doc int) map[string][]string {
	out := make(map[string][]string)
	lister, ok := l.reader.(storedFieldLister)
	if !ok {
		return out
	}
	for _, f := range lister.StoredFields(doc) {
		if f == FieldKey || f == storedSectionsField {
			continue
		}
		if raw, ok := l.reader.FieldValue(doc, f); ok {
			out[f] = splitValues(raw)
		}
	}
	return out
}

// storedFieldLister is implemented by readers that can enumerate the stored
// fields of a chunk.
type storedFieldLister interface {
	StoredFields(chunk int) []string
}
