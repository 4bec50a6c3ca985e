package chunkspan

import (
	"sort"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SPELLING SUGGESTIONS
// ═══════════════════════════════════════════════════════════════════════════════
// Candidates come from the text-field dictionary. A candidate is offered for
// a query word when all of these hold:
//
//	edit distance   ≤ 2
//	doc frequency   ≥ MinDocFreq
//	doc frequency   ≥ TermOccurrenceFactor × frequency of the word itself
//	score           ≥ Accuracy, where score = 1 - distance / max(len)
//
// Accepted candidates sort by score, then frequency, then spelling.
//
// EXAMPLE:
// --------
//
//	dictionary: whale(12) whales(3) while(40)
//	word "whsle" (0)
//	  whale  distance 1  score 0.80
//	  while  distance 1  score 0.80  df 40 → first
//	  whales distance 2  score 0.67
// ═══════════════════════════════════════════════════════════════════════════════

const maxEditDistance = 2

// Suggestion is one alternative spelling.
type Suggestion struct {
	Term    string
	Score   float64
	DocFreq int
}

type dictEntry struct {
	text string
	df   int
}

// Speller suggests spellings from one index generation. It is immutable once
// built and safe for concurrent use.
type Speller struct {
	reader IndexReader
	cfg    SpellConfig
	dict   []dictEntry
}

// NewSpeller loads the text-field dictionary of r, leaving out bi-grams and
// terms below the frequency cutoff.
func NewSpeller(r IndexReader, cfg SpellConfig) *Speller {
	s := &Speller{reader: r, cfg: cfg}
	it := r.Terms(FieldText, "")
	for it.Next() {
		t := it.Term()
		if IsBigram(t.Text) || t.Text == FieldStartTerm || t.Text == FieldEndTerm {
			continue
		}
		if df := it.DocFreq(); df >= cfg.MinDocFreq {
			s.dict = append(s.dict, dictEntry{text: t.Text, df: df})
		}
	}
	return s
}

// Suggest returns up to SuggestionsPerTerm alternatives for word.
func (s *Speller) Suggest(word string) []Suggestion {
	if s == nil || word == "" {
		return nil
	}
	own := s.reader.DocFreq(Term{Field: FieldText, Text: word})
	wordLen := utf8.RuneCountInString(word)

	var out []Suggestion
	for _, e := range s.dict {
		if e.text == word || float64(e.df) < s.cfg.TermOccurrenceFactor*float64(own) {
			continue
		}
		n := utf8.RuneCountInString(e.text)
		if abs(n-wordLen) > maxEditDistance {
			continue
		}
		d := editDistance(word, e.text, maxEditDistance)
		if d > maxEditDistance {
			continue
		}
		score := 1 - float64(d)/float64(max(n, wordLen))
		if score < s.cfg.Accuracy {
			continue
		}
		out = append(out, Suggestion{Term: e.text, Score: score, DocFreq: e.df})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocFreq != b.DocFreq {
			return a.DocFreq > b.DocFreq
		}
		return a.Term < b.Term
	})
	if limit := s.cfg.SuggestionsPerTerm; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Best returns the top suggestion for a term the index does not contain.
func (s *Speller) Best(t Term) (string, bool) {
	if s == nil || s.reader.DocFreq(t) > 0 {
		return "", false
	}
	sugg := s.Suggest(t.Text)
	if len(sugg) == 0 {
		return "", false
	}
	return sugg[0].Term, true
}

// editDistance is the Levenshtein distance of a and b over runes. It stops
// early and returns limit+1 once every cell of a row exceeds limit.
func editDistance(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
