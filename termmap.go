package chunkspan

import "sort"

// TermMap collects the terms a query touched while it was evaluated, so
// snippets can later mark them. The number of distinct terms is bounded by
// the term limit; exceeding it fails the query.
type TermMap struct {
	limit  int
	counts map[Term]int
}

// NewTermMap returns a map holding at most limit distinct terms. A limit
// <= 0 means no limit.
func NewTermMap(limit int) *TermMap {
	return &TermMap{limit: limit, counts: make(map[Term]int)}
}

// Add records one use of t.
func (m *TermMap) Add(t Term) error {
	if _, ok := m.counts[t]; !ok && m.limit > 0 && len(m.counts) >= m.limit {
		return excessiveWork("query matches more than %d terms", m.limit)
	}
	m.counts[t]++
	return nil
}

// Contains reports whether t was recorded.
func (m *TermMap) Contains(t Term) bool {
	_, ok := m.counts[t]
	return ok
}

// Count returns how often t was recorded.
func (m *TermMap) Count(t Term) int { return m.counts[t] }

// Len is the number of distinct terms.
func (m *TermMap) Len() int { return len(m.counts) }

// Remaining is how many more distinct terms fit, or -1 when unlimited.
func (m *TermMap) Remaining() int {
	if m.limit <= 0 {
		return -1
	}
	return m.limit - len(m.counts)
}

// FieldTerms returns the sorted terms recorded for field.
func (m *TermMap) FieldTerms(field string) []string {
	var out []string
	for t := range m.counts {
		if t.Field == field {
			out = append(out, t.Text)
		}
	}
	sort.Strings(out)
	return out
}

// containsWord reports whether a stored word, or a bi-gram starting or
// ending with it, was recorded for field.
func (m *TermMap) containsWord(field, word string) bool {
	if m == nil {
		return false
	}
	if m.Contains(Term{Field: field, Text: word}) {
		return true
	}
	for t := range m.counts {
		if t.Field != field || !IsBigram(t.Text) {
			continue
		}
		left, right := splitBigram(t.Text)
		if left == word || right == word {
			return true
		}
	}
	return false
}
