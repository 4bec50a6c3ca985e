package chunkspan

import (
	"fmt"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SPAN QUERY TREE
// ═══════════════════════════════════════════════════════════════════════════════
// Queries arrive already parsed, as an immutable tree of the node types below.
// The set is closed: every pass over a tree is a type switch over exactly
// these types, and adding a node kind means touching each of those switches.
//
//	Near(text, slop=Unbounded, inOrder)
//	├── Term(text, "whale")
//	└── Or(text)
//	    ├── Term(text, "white")
//	    └── Wildcard(text, "grey*")
//
// Rewriters never modify a node; they return a new node or the original.
//
// EXAMPLE:
// --------
//
//	q := Phrase(FieldText, "the", "white", "whale")
//	q = Exact("title", "moby", "dick")
//	q = And(Phrase(FieldText, "white", "whale"), Exact("title", "moby", "dick"))
// ═══════════════════════════════════════════════════════════════════════════════

// Unbounded asks for as much slop as the index allows. A rewrite pass
// replaces it with the chunk overlap (text) or bump value - 1 (metadata).
const Unbounded = math.MaxInt32

// SpanRecording controls which hit and term positions of a clause are kept
// for highlighting.
type SpanRecording int

const (
	RecordNone    SpanRecording = iota // score only
	RecordSpans                        // matched spans
	RecordContext                      // spans plus terms in their context
	RecordAll                          // every term occurrence in the field
)

func (r SpanRecording) String() string {
	switch r {
	case RecordNone:
		return "none"
	case RecordSpans:
		return "spans"
	case RecordContext:
		return "context"
	case RecordAll:
		return "all"
	}
	return fmt.Sprintf("SpanRecording(%d)", int(r))
}

// SpanQuery is a node of the query tree.
type SpanQuery interface {
	// Field is the field the node searches; "" for nodes spanning fields.
	Field() string
	Boost() float64
	String() string

	spanQuery()
}

// Common carries the attributes every node has.
type Common struct {
	BoostValue float64
	Recording  SpanRecording
}

// Boost returns the clause weight; zero means 1.
func (c Common) Boost() float64 {
	if c.BoostValue == 0 {
		return 1
	}
	return c.BoostValue
}

func boostSuffix(c Common) string {
	if c.BoostValue == 0 || c.BoostValue == 1 {
		return ""
	}
	return fmt.Sprintf("^%g", c.BoostValue)
}

// TermQuery matches one term.
type TermQuery struct {
	Common
	Term Term
}

// WildcardQuery matches every term of Field matching Pattern, where '*'
// matches any run of characters and '?' exactly one.
type WildcardQuery struct {
	Common
	FieldName string
	Pattern   string
}

// RangeQuery matches every term of Field between Lower and Upper. An empty
// bound is open.
type RangeQuery struct {
	Common
	FieldName          string
	Lower, Upper       string
	IncLower, IncUpper bool
}

// NearQuery matches its clauses close together in one field.
type NearQuery struct {
	Common
	Clauses []SpanQuery
	Slop    int
	InOrder bool
}

// OrNearQuery matches any of its clauses; clauses found within Slop of each
// other score as a proximity match.
type OrNearQuery struct {
	Common
	Clauses []SpanQuery
	Slop    int
}

// OrQuery matches any of its clauses.
type OrQuery struct {
	Common
	Clauses []SpanQuery
}

// NotQuery matches Include spans that are not within Slop words of an
// Exclude span.
type NotQuery struct {
	Common
	Include SpanQuery
	Exclude SpanQuery
	Slop    int
}

// ExactQuery matches a whole field value: its clauses in order, adjacent,
// and touching both value boundaries.
type ExactQuery struct {
	Common
	Clauses []SpanQuery
}

// SectionTypeFilterQuery restricts Query to chunks holding one of the
// given section types.
type SectionTypeFilterQuery struct {
	Common
	Query SpanQuery
	Types []string
}

// DocFilterQuery restricts Query to the documents in Docs, or to the
// documents outside it when Exclude is set.
type DocFilterQuery struct {
	Common
	Query   SpanQuery
	Docs    *roaring.Bitmap
	Exclude bool
}

// MultiFieldAndQuery requires every term in Terms to appear in at least one
// of Fields, and scores by the best proximity match within each field.
type MultiFieldAndQuery struct {
	Common
	Fields []string
	Terms  []string
	Slop   int
}

// AndQuery requires every clause to match the same document and no Excludes
// clause to match it. Clauses may target different fields.
type AndQuery struct {
	Common
	Clauses  []SpanQuery
	Excludes []SpanQuery
}

// MoreLikeThisQuery matches documents sharing the most distinctive terms of
// the document with Key.
type MoreLikeThisQuery struct {
	Common
	Key      string
	Fields   []string
	MaxTerms int
}

func (*TermQuery) spanQuery()              {}
func (*WildcardQuery) spanQuery()          {}
func (*RangeQuery) spanQuery()             {}
func (*NearQuery) spanQuery()              {}
func (*OrNearQuery) spanQuery()            {}
func (*OrQuery) spanQuery()                {}
func (*NotQuery) spanQuery()               {}
func (*ExactQuery) spanQuery()             {}
func (*SectionTypeFilterQuery) spanQuery() {}
func (*DocFilterQuery) spanQuery()         {}
func (*MultiFieldAndQuery) spanQuery()     {}
func (*AndQuery) spanQuery()               {}
func (*MoreLikeThisQuery) spanQuery()      {}

func (q *TermQuery) Field() string              { return q.Term.Field }
func (q *WildcardQuery) Field() string          { return q.FieldName }
func (q *RangeQuery) Field() string             { return q.FieldName }
func (q *NearQuery) Field() string              { return clausesField(q.Clauses) }
func (q *OrNearQuery) Field() string            { return clausesField(q.Clauses) }
func (q *OrQuery) Field() string                { return clausesField(q.Clauses) }
func (q *NotQuery) Field() string               { return q.Include.Field() }
func (q *ExactQuery) Field() string             { return clausesField(q.Clauses) }
func (q *SectionTypeFilterQuery) Field() string { return q.Query.Field() }
func (q *DocFilterQuery) Field() string         { return q.Query.Field() }
func (q *MultiFieldAndQuery) Field() string     { return "" }
func (q *AndQuery) Field() string               { return "" }
func (q *MoreLikeThisQuery) Field() string      { return "" }

// clausesField returns the common field of clauses, or "" when they differ.
func clausesField(clauses []SpanQuery) string {
	field := ""
	for i, c := range clauses {
		f := c.Field()
		if i == 0 {
			field = f
		} else if f != field {
			return ""
		}
	}
	return field
}

func (q *TermQuery) String() string {
	return fmt.Sprintf("%s:%s%s", q.Term.Field, q.Term.Text, boostSuffix(q.Common))
}

func (q *WildcardQuery) String() string {
	return fmt.Sprintf("%s:%s%s", q.FieldName, q.Pattern, boostSuffix(q.Common))
}

func (q *RangeQuery) String() string {
	lo, hi := "{", "}"
	if q.IncLower {
		lo = "["
	}
	if q.IncUpper {
		hi = "]"
	}
	return fmt.Sprintf("%s:%s%s TO %s%s%s", q.FieldName, lo, q.Lower, q.Upper, hi, boostSuffix(q.Common))
}

func (q *NearQuery) String() string {
	op := "near"
	if q.InOrder {
		op = "inorder"
	}
	return fmt.Sprintf("%s/%s(%s)%s", op, slopString(q.Slop), joinQueries(q.Clauses, " "), boostSuffix(q.Common))
}

func (q *OrNearQuery) String() string {
	return fmt.Sprintf("ornear/%s(%s)%s", slopString(q.Slop), joinQueries(q.Clauses, " "), boostSuffix(q.Common))
}

func (q *OrQuery) String() string {
	return fmt.Sprintf("(%s)%s", joinQueries(q.Clauses, " OR "), boostSuffix(q.Common))
}

func (q *NotQuery) String() string {
	return fmt.Sprintf("(%s NOT/%d %s)", q.Include, q.Slop, q.Exclude)
}

func (q *ExactQuery) String() string {
	return fmt.Sprintf("exact(%s)%s", joinQueries(q.Clauses, " "), boostSuffix(q.Common))
}

func (q *SectionTypeFilterQuery) String() string {
	return fmt.Sprintf("%s IN sectionType(%s)", q.Query, strings.Join(q.Types, ","))
}

func (q *DocFilterQuery) String() string {
	op := "IN"
	if q.Exclude {
		op = "NOT IN"
	}
	n := uint64(0)
	if q.Docs != nil {
		n = q.Docs.GetCardinality()
	}
	return fmt.Sprintf("%s %s docs(%d)", q.Query, op, n)
}

func (q *MultiFieldAndQuery) String() string {
	return fmt.Sprintf("[%s]:and(%s)%s", strings.Join(q.Fields, ","), strings.Join(q.Terms, " "), boostSuffix(q.Common))
}

func (q *AndQuery) String() string {
	s := joinQueries(q.Clauses, " AND ")
	for _, ex := range q.Excludes {
		s += " NOT " + ex.String()
	}
	return "(" + s + ")" + boostSuffix(q.Common)
}

func (q *MoreLikeThisQuery) String() string {
	return fmt.Sprintf("moreLikeThis(%s)", q.Key)
}

func slopString(slop int) string {
	if slop == Unbounded {
		return "*"
	}
	return fmt.Sprint(slop)
}

func joinQueries(qs []SpanQuery, sep string) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.String()
	}
	return strings.Join(parts, sep)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTORS
// ═══════════════════════════════════════════════════════════════════════════════

// NewTerm returns a term query recording its spans.
func NewTerm(field, text string) *TermQuery {
	return &TermQuery{Common: Common{Recording: RecordSpans}, Term: Term{Field: field, Text: text}}
}

// Phrase matches words adjacent and in order. Words are analysed the way
// the indexer analyses text, so "The Whale" finds "the whale".
func Phrase(field string, words ...string) *NearQuery {
	return &NearQuery{
		Common:  Common{Recording: RecordSpans},
		Clauses: termClauses(field, words),
		Slop:    0,
		InOrder: true,
	}
}

// Near matches words within slop of each other in any order.
func Near(field string, slop int, words ...string) *NearQuery {
	return &NearQuery{
		Common:  Common{Recording: RecordSpans},
		Clauses: termClauses(field, words),
		Slop:    slop,
	}
}

// Exact matches a whole field value.
func Exact(field string, words ...string) *ExactQuery {
	return &ExactQuery{Common: Common{Recording: RecordSpans}, Clauses: termClauses(field, words)}
}

// Or matches any clause.
func Or(clauses ...SpanQuery) *OrQuery {
	return &OrQuery{Common: Common{Recording: RecordSpans}, Clauses: clauses}
}

// And requires every clause to match the document.
func And(clauses ...SpanQuery) *AndQuery {
	return &AndQuery{Common: Common{Recording: RecordSpans}, Clauses: clauses}
}

func termClauses(field string, words []string) []SpanQuery {
	var clauses []SpanQuery
	for _, w := range words {
		for _, t := range Analyze(w) {
			clauses = append(clauses, NewTerm(field, t))
		}
	}
	return clauses
}

// children returns the direct sub-queries of q.
func children(q SpanQuery) []SpanQuery {
	switch q := q.(type) {
	case *TermQuery, *WildcardQuery, *RangeQuery, *MultiFieldAndQuery, *MoreLikeThisQuery:
		return nil
	case *NearQuery:
		return q.Clauses
	case *OrNearQuery:
		return q.Clauses
	case *OrQuery:
		return q.Clauses
	case *NotQuery:
		return []SpanQuery{q.Include, q.Exclude}
	case *ExactQuery:
		return q.Clauses
	case *SectionTypeFilterQuery:
		return []SpanQuery{q.Query}
	case *DocFilterQuery:
		return []SpanQuery{q.Query}
	case *AndQuery:
		return append(append([]SpanQuery(nil), q.Clauses...), q.Excludes...)
	}
	panic(fmt.Sprintf("chunkspan: unknown query node %T", q))
}

// validate checks the structural rules evaluation depends on.
func validate(q SpanQuery) error {
	switch q := q.(type) {
	case nil:
		return configError("nil query")
	case *TermQuery:
		if q.Term.Field == "" {
			return configError("term %q has no field", q.Term.Text)
		}
	case *WildcardQuery:
		if q.FieldName == "" || q.Pattern == "" {
			return configError("wildcard needs a field and a pattern")
		}
	case *RangeQuery:
		if q.FieldName == "" {
			return configError("range has no field")
		}
		if q.Lower != "" && q.Upper != "" && q.Lower > q.Upper {
			return configError("range lower bound %q above upper bound %q", q.Lower, q.Upper)
		}
	case *NearQuery:
		return validateSpanClauses("near", q.Clauses, q.Slop)
	case *OrNearQuery:
		return validateSpanClauses("ornear", q.Clauses, q.Slop)
	case *OrQuery:
		return validateSpanClauses("or", q.Clauses, 0)
	case *ExactQuery:
		return validateSpanClauses("exact", q.Clauses, 0)
	case *NotQuery:
		if q.Include == nil || q.Exclude == nil {
			return configError("not needs include and exclude clauses")
		}
		if q.Include.Field() != q.Exclude.Field() {
			return configError("not clauses on different fields %q and %q", q.Include.Field(), q.Exclude.Field())
		}
		if q.Slop < 0 {
			return configError("negative slop %d", q.Slop)
		}
	case *SectionTypeFilterQuery:
		if q.Query == nil {
			return configError("section type filter without query")
		}
		if q.Query.Field() != FieldText {
			return configError("section types apply to the %q field, not %q", FieldText, q.Query.Field())
		}
	case *DocFilterQuery:
		if q.Query == nil || q.Docs == nil {
			return configError("document filter needs a query and a document set")
		}
	case *MultiFieldAndQuery:
		if len(q.Fields) == 0 || len(q.Terms) == 0 {
			return configError("multi-field and needs fields and terms")
		}
		return nil
	case *AndQuery:
		if len(q.Clauses) == 0 {
			return configError("and needs at least one clause")
		}
	case *MoreLikeThisQuery:
		if q.Key == "" {
			return configError("more-like-this needs a document key")
		}
		return nil
	default:
		return configError("unsupported query node %T", q)
	}
	for _, c := range children(q) {
		if err := validate(c); err != nil {
			return err
		}
	}
	return nil
}

func validateSpanClauses(op string, clauses []SpanQuery, slop int) error {
	if len(clauses) == 0 {
		return configError("%s needs at least one clause", op)
	}
	if slop < 0 {
		return configError("%s has negative slop %d", op, slop)
	}
	if clausesField(clauses) == "" {
		return configError("%s clauses must share one field", op)
	}
	for _, c := range clauses {
		switch c.(type) {
		case *AndQuery, *MultiFieldAndQuery, *MoreLikeThisQuery:
			return configError("%s cannot contain a document-level %T", op, c)
		}
	}
	return nil
}
