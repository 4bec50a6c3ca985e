package chunkspan

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TEXT ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════
// Stored text is plain text interleaved with structural markers:
//
//	NodeMarker <node>[.<word>] NodeMarker   a new source node starts here
//	BumpMarker <n> BumpMarker                advance the word position by n
//	FieldStartMarker                         start-of-value boundary token
//	FieldEndMarker                           end-of-value boundary token
//
// The analysis pipeline turns such text into positioned words:
//
//	"{n:3}The Quick{bump:100}Fox"
//	   → the@0 (node 3, word 0), quick@1 (node 3, word 1), fox@102 (node 3, word 2)
//
// Boundary tokens occupy a position like any word; that is what lets an
// exact query insist a match touches both ends of a field value.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	NodeMarker       = '\uE000'
	BumpMarker       = '\uE001'
	FieldStartMarker = '\uE002'
	FieldEndMarker   = '\uE003'
)

// Terms indexed for the field boundary markers.
var (
	FieldStartTerm = string(FieldStartMarker)
	FieldEndTerm   = string(FieldEndMarker)
)

// BigramSeparator joins a stop word to its neighbour in bi-gram terms.
const BigramSeparator = "~"

// AnalyzerConfig controls term normalisation. Words are lowercased, then
// optionally accent-folded, mapped through Plurals and stemmed, in that
// order; the query rewrite passes apply the same steps.
type AnalyzerConfig struct {
	EnableStemming bool
	FoldAccents    bool
	Plurals        WordMap
}

// DefaultAnalyzerConfig lowercases words without stemming them.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{}
}

// BoundaryKind distinguishes ordinary words from field boundary tokens.
type BoundaryKind int

const (
	BoundaryNone BoundaryKind = iota
	BoundaryStart
	BoundaryEnd
)

// Word is one positioned token of marked text.
type Word struct {
	Term     string // normalised term as indexed
	Pos      int    // word position, bumps included
	Node     int    // source node number
	NodeWord int    // word offset within the node
	Start    int    // byte offset of the surface text in Plain
	End      int
	Boundary BoundaryKind
}

// MarkedText is the result of stripping markers from stored text.
type MarkedText struct {
	Plain string
	Words []Word
}

// StripMarkers removes every structural marker from text, recording for each
// word its position, node address and byte range in the stripped text.
// Positions must never decrease; a marker sequence that would make them do so
// indicates a corrupt index and panics with an ErrIndexCorruption.
func StripMarkers(text string, config AnalyzerConfig) MarkedText {
	var plain strings.Builder
	plain.Grow(len(text))

	var words []Word
	pos, node, nodeWord := 0, 0, 0
	wordStart := -1

	flushWord := func() {
		if wordStart < 0 {
			return
		}
		surface := plain.String()[wordStart:]
		words = append(words, Word{
			Term:     normalizeTerm(surface, config),
			Pos:      pos,
			Node:     node,
			NodeWord: nodeWord,
			Start:    wordStart,
			End:      plain.Len(),
		})
		pos++
		nodeWord++
		wordStart = -1
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch r {
		case NodeMarker, BumpMarker:
			flushWord()
			end := strings.IndexRune(text[i+size:], r)
			if end < 0 {
				failCorrupt("unterminated marker %U at byte %d", r, i)
			}
			arg := text[i+size : i+size+end]
			i += size + end + size
			if r == NodeMarker {
				node, nodeWord = parseNodeAddress(arg)
			} else {
				n, err := strconv.Atoi(arg)
				if err != nil || n < 0 {
					failCorrupt("bad bump marker %q", arg)
				}
				pos += n
			}
			continue
		case FieldStartMarker, FieldEndMarker:
			flushWord()
			kind, term := BoundaryStart, FieldStartTerm
			if r == FieldEndMarker {
				kind, term = BoundaryEnd, FieldEndTerm
			}
			words = append(words, Word{
				Term: term, Pos: pos, Node: node, NodeWord: nodeWord,
				Start: plain.Len(), End: plain.Len(), Boundary: kind,
			})
			pos++
			i += size
			continue
		}

		if isWordRune(r) {
			if wordStart < 0 {
				wordStart = plain.Len()
			}
		} else {
			flushWord()
		}
		plain.WriteString(text[i : i+size])
		i += size
	}
	flushWord()

	for k := 1; k < len(words); k++ {
		if words[k].Pos < words[k-1].Pos {
			failCorrupt("word positions decrease: %d after %d", words[k].Pos, words[k-1].Pos)
		}
	}
	return MarkedText{Plain: plain.String(), Words: words}
}

func parseNodeAddress(arg string) (node, word int) {
	nodePart, wordPart, hasWord := strings.Cut(arg, ".")
	node, err := strconv.Atoi(nodePart)
	if err != nil {
		failCorrupt("bad node marker %q", arg)
	}
	if hasWord {
		if word, err = strconv.Atoi(wordPart); err != nil {
			failCorrupt("bad node marker %q", arg)
		}
	}
	return node, word
}

// NodeMarkerText renders a node marker for node starting at word offset word.
func NodeMarkerText(node, word int) string {
	if word == 0 {
		return string(NodeMarker) + strconv.Itoa(node) + string(NodeMarker)
	}
	return string(NodeMarker) + strconv.Itoa(node) + "." + strconv.Itoa(word) + string(NodeMarker)
}

// BumpMarkerText renders a position bump of n words.
func BumpMarkerText(n int) string {
	return string(BumpMarker) + strconv.Itoa(n) + string(BumpMarker)
}

// Analyze returns the terms of plain (marker-free) text.
func Analyze(text string) []string {
	return AnalyzeWithConfig(text, DefaultAnalyzerConfig())
}

// AnalyzeWithConfig tokenizes, lowercases and optionally stems text.
func AnalyzeWithConfig(text string, config AnalyzerConfig) []string {
	tokens := tokenize(text)
	for i, token := range tokens {
		tokens[i] = normalizeTerm(token, config)
	}
	return tokens
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func normalizeTerm(surface string, config AnalyzerConfig) string {
	term := strings.ToLower(surface)
	if config.FoldAccents {
		term = FoldAccents(term)
	}
	if config.Plurals != nil {
		term = config.Plurals.Lookup(term)
	}
	if config.EnableStemming {
		term = Stem(term)
	}
	return term
}

// IsBigram reports whether term joins two words with BigramSeparator.
func IsBigram(term string) bool {
	return strings.Contains(term, BigramSeparator)
}

// Bigram joins two terms.
func Bigram(left, right string) string {
	return left + BigramSeparator + right
}

func splitBigram(term string) (left, right string) {
	left, right, _ = strings.Cut(term, BigramSeparator)
	return left, right
}

// StopSet is a set of stop words.
type StopSet map[string]struct{}

// NewStopSet builds a set from words.
func NewStopSet(words []string) StopSet {
	s := make(StopSet, len(words))
	for _, w := range words {
		s[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return s
}

// Contains reports whether word is a stop word. A nil set contains nothing.
func (s StopSet) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// DefaultStopWords returns the stop word list used when none is configured.
func DefaultStopWords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
		"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
		"s", "such", "t", "that", "the", "their", "then", "there", "these",
		"they", "this", "to", "was", "will", "with",
	}
}
