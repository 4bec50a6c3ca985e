package chunkspan

import (
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TERM EXPANSION
// ═══════════════════════════════════════════════════════════════════════════════
// Wildcard and range queries enumerate the term dictionary and OR together
// the postings of every match. The enumeration starts at the longest literal
// prefix and stops at the first term past it:
//
//	pattern "whal*"  → Terms(text, "whal") → whale, whalebone, whaler, ... stop at "whall"
//
// Every expanded term counts against the query's term limit. Crossing it
// fails the whole query rather than silently searching a subset.
// ═══════════════════════════════════════════════════════════════════════════════

type expansion struct {
	field      string
	from       string
	match      func(text string) (ok bool, more bool)
	allowGrams bool
}

// expand enumerates the terms selected by x, recording each in the term map.
func (e *evaluator) expand(x expansion) ([]Term, error) {
	var out []Term
	it := e.reader.Terms(x.field, x.from)
	for it.Next() {
		if err := e.work.tick(1); err != nil {
			return nil, err
		}
		t := it.Term()
		ok, more := x.match(t.Text)
		if !more {
			break
		}
		if !ok {
			continue
		}
		if !x.allowGrams && IsBigram(t.Text) {
			continue
		}
		if e.stop.Contains(t.Text) {
			continue
		}
		if err := e.terms.Add(t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func wildcardExpansion(q *WildcardQuery) expansion {
	prefix := literalPrefix(q.Pattern)
	return expansion{
		field: q.FieldName,
		from:  prefix,
		match: func(text string) (bool, bool) {
			if !strings.HasPrefix(text, prefix) {
				return false, false
			}
			return globMatch(q.Pattern, text), true
		},
		allowGrams: strings.Contains(q.Pattern, BigramSeparator),
	}
}

func rangeExpansion(q *RangeQuery) expansion {
	return expansion{
		field: q.FieldName,
		from:  q.Lower,
		match: func(text string) (bool, bool) {
			if q.Upper != "" {
				if text > q.Upper || (text == q.Upper && !q.IncUpper) {
					return false, false
				}
			}
			if text == q.Lower && !q.IncLower {
				return false, true
			}
			return true, true
		},
	}
}

func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// globMatch reports whether text matches pattern, where '*' matches any run
// of runes and '?' exactly one.
func globMatch(pattern, text string) bool {
	star, starText := -1, 0
	p, t := 0, 0
	for t < len(text) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				star, starText = p, t
				p++
				continue
			case '?':
				_, size := utf8.DecodeRuneInString(text[t:])
				p++
				t += size
				continue
			default:
				pr, psize := utf8.DecodeRuneInString(pattern[p:])
				tr, tsize := utf8.DecodeRuneInString(text[t:])
				if pr == tr {
					p += psize
					t += tsize
					continue
				}
			}
		}
		if star < 0 {
			return false
		}
		_, size := utf8.DecodeRuneInString(text[starText:])
		starText += size
		p, t = star+1, starText
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
