package chunkspan

import (
	"sync"
)

// Address locates a word in the source document: the node it belongs to and
// its word offset within that node.
type Address struct {
	Node int
	Word int
}

// Snippet is one highlighted match. Text marks the matched span with
// <hit>...</hit> and matched terms with <term>...</term>.
type Snippet struct {
	Rank        int
	Score       float64
	Field       string
	Text        string
	SectionType string
	Start       Address
	End         Address
}

// DocHit is one matching document.
type DocHit struct {
	Doc   int
	Key   string
	Score float64
	// Matches is the number of deduplicated spans found, snippets or not.
	Matches int

	raw    float64 // score before normalisation
	spans  []fieldSpans
	loader *docLoader

	snippetsOnce sync.Once
	snippets     []Snippet
	metaOnce     sync.Once
	meta         map[string][]string
}

type fieldSpans struct {
	field     string
	recording SpanRecording
	hits      []SpanHit
}

func (h *DocHit) rawScore() float64 {
	if h.raw != 0 {
		return h.raw
	}
	return h.Score
}

// Snippets materialises the snippets of the document on first use. Snippets
// of all fields are returned best first: by score, then field and position.
func (h *DocHit) Snippets() []Snippet {
	h.snippetsOnce.Do(func() {
		if h.loader != nil {
			h.snippets = h.loader.snippets(h)
		}
	})
	return h.snippets
}

// Meta returns the stored metadata fields of the document.
func (h *DocHit) Meta() map[string][]string {
	h.metaOnce.Do(func() {
		if h.loader != nil {
			h.meta = h.loader.meta(h.Doc)
		}
	})
	return h.meta
}

// Result is the answer to one Search.
type Result struct {
	Hits []*DocHit
	// TotalDocs is the number of matching documents, before paging.
	TotalDocs int
	// StartDoc and EndDoc delimit Hits within the full ranking: Hits[i] is
	// document StartDoc+i, EndDoc is one past the last.
	StartDoc    int
	EndDoc      int
	Groups      []*GroupResult
	Suggestions map[string][]Suggestion
	Stats       DedupStats
}

// GroupResult holds the facet counts of one grouping field.
type GroupResult struct {
	Field       string
	TotalGroups int
	StartGroup  int
	EndGroup    int
	Groups      []*Group
}

// Group is one facet value with the number of matching documents in it.
type Group struct {
	Rank      int
	Value     string
	Count     int
	Subgroups []*Group
	Hits      []*DocHit
}
