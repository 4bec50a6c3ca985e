package chunkspan

import (
	"log/slog"
	"sort"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FACET GROUPS
// ═══════════════════════════════════════════════════════════════════════════════
// Values of a facet field are colon-separated paths. Every distinct prefix
// becomes a group node, stored as a left-child/right-sibling tree:
//
//	values:  fiction:fantasy  fiction:scifi  nonfiction
//
//	0 (root)
//	└── 1 fiction ──────────────▶ 4 nonfiction
//	    └── 2 fiction:fantasy ──▶ 3 fiction:scifi
//
//	firstChild  [1 2 -1 -1 -1]
//	nextSibling [-1 4 3 -1 -1]
//
// Each document links to its leaf groups: one group id inline, or an index
// into an overflow list for multi-valued documents.
//
// COUNTING:
// ---------
// A matching document adds one to every group on the path from each of its
// leaves to the root. A document with two leaves under the same parent still
// counts once there.
//
// BEST BRANCH:
// ------------
// Starting at the root, descend while exactly one child has documents. The
// groups reported are the non-empty children of the node where descent
// stopped (or that node itself when it is a leaf), each with its non-empty
// descendants nested below it:
//
//	counts: fiction 2 (fantasy 1, scifi 1)  nonfiction 1
//	  → root has two non-empty children, report [fiction{fantasy, scifi}, nonfiction]
//
//	counts: fiction 2 (fantasy 1, scifi 1)  nonfiction 0
//	  → descend into fiction, report [fiction:fantasy, fiction:scifi]
// ═══════════════════════════════════════════════════════════════════════════════

// GroupPathSeparator separates the levels of a hierarchical facet value.
const GroupPathSeparator = ":"

// HitGroupAll selects every reported group for hit collection.
const HitGroupAll = "*"

// GroupSort orders the reported groups.
type GroupSort int

const (
	GroupByCount GroupSort = iota // descending count, then value
	GroupByValue                  // ascending value
)

// GroupSpec asks for facet counts on one field.
type GroupSpec struct {
	Field string
	Sort  GroupSort
	Start int
	Max   int // <= 0 means all
	// HitGroup names the group whose best documents are returned with it,
	// or HitGroupAll. Empty returns no documents.
	HitGroup string
	MaxHits  int
}

// GroupData is the immutable group tree of one facet field.
type GroupData struct {
	field       string
	values      []string
	parent      []int
	firstChild  []int
	nextSibling []int
	links       map[int]int // doc → group id, or -(overflow index)-1
	overflow    [][]int
}

// BuildGroupData reads every value of field. A value posted anywhere but at
// position 0 of a doc-info chunk means the field is tokenized, which is a
// configuration error; a value on a chunk that is not a document is
// skipped with a warning.
func BuildGroupData(r IndexReader, docs *DocNumMap, field string, logger *slog.Logger) (*GroupData, error) {
	g := &GroupData{
		field:       field,
		values:      []string{""},
		parent:      []int{-1},
		firstChild:  []int{-1},
		nextSibling: []int{-1},
		links:       make(map[int]int),
	}
	warn := newWarnLimiter(componentLogger(logger, "groups"), "group values")
	ids := map[string]int{"": 0}
	lastChild := []int{-1}

	intern := func(path string) int {
		node := 0
		prefix := ""
		for _, seg := range strings.Split(path, GroupPathSeparator) {
			if seg = strings.TrimSpace(seg); seg == "" {
				continue
			}
			if prefix == "" {
				prefix = seg
			} else {
				prefix += GroupPathSeparator + seg
			}
			id, ok := ids[prefix]
			if !ok {
				id = len(g.values)
				ids[prefix] = id
				g.values = append(g.values, prefix)
				g.parent = append(g.parent, node)
				g.firstChild = append(g.firstChild, -1)
				g.nextSibling = append(g.nextSibling, -1)
				lastChild = append(lastChild, -1)
				if lastChild[node] < 0 {
					g.firstChild[node] = id
				} else {
					g.nextSibling[lastChild[node]] = id
				}
				lastChild[node] = id
			}
			node = id
		}
		return node
	}

	terms := r.Terms(field, "")
	for terms.Next() {
		t := terms.Term()
		it, err := r.TermPositions(t)
		if err != nil {
			return nil, err
		}
		leaf := -1
		for it.Next() {
			pos := it.Position()
			if pos.Offset != 0 {
				return nil, configError("cannot group on tokenized field %q (term %q at offset %d)", field, t.Text, pos.Offset)
			}
			if !docs.IsDoc(pos.Chunk) {
				warn.Warn("group value outside a document", slog.String("field", field),
					slog.String("value", t.Text), slog.Int("chunk", pos.Chunk))
				continue
			}
			if r.IsDeleted(pos.Chunk) {
				continue
			}
			if leaf < 0 {
				if leaf = intern(t.Text); leaf == 0 {
					break
				}
			}
			g.link(pos.Chunk, leaf)
		}
	}
	return g, nil
}

func (g *GroupData) link(doc, group int) {
	l, ok := g.links[doc]
	switch {
	case !ok:
		g.links[doc] = group
	case l >= 0:
		if l == group {
			return
		}
		g.overflow = append(g.overflow, []int{l, group})
		g.links[doc] = -len(g.overflow)
	default:
		g.overflow[-l-1] = append(g.overflow[-l-1], group)
	}
}

// Field is the grouping field.
func (g *GroupData) Field() string { return g.field }

// NumGroups counts the nodes, root included.
func (g *GroupData) NumGroups() int { return len(g.values) }

// Value is the full path of a group; the root's is "".
func (g *GroupData) Value(id int) string { return g.values[id] }

// Parent returns the parent id; -1 for the root.
func (g *GroupData) Parent(id int) int { return g.parent[id] }

// Children returns the child ids of a group in value order.
func (g *GroupData) Children(id int) []int {
	var out []int
	for c := g.firstChild[id]; c >= 0; c = g.nextSibling[c] {
		out = append(out, c)
	}
	return out
}

// GroupsOf returns the leaf groups of doc.
func (g *GroupData) GroupsOf(doc int) []int {
	l, ok := g.links[doc]
	switch {
	case !ok:
		return nil
	case l >= 0:
		return []int{l}
	}
	return g.overflow[-l-1]
}

// GroupCounts are per-group document counts for one query.
type GroupCounts struct {
	data    *GroupData
	counts  []int
	lastDoc []int
}

// NewCounts starts an empty count.
func (g *GroupData) NewCounts() *GroupCounts {
	last := make([]int, len(g.values))
	for i := range last {
		last[i] = -1
	}
	return &GroupCounts{data: g, counts: make([]int, len(g.values)), lastDoc: last}
}

// Add counts doc into each of its groups and their ancestors.
func (c *GroupCounts) Add(doc int) {
	for _, leaf := range c.data.GroupsOf(doc) {
		for id := leaf; id >= 0; id = c.data.parent[id] {
			if c.lastDoc[id] == doc {
				break // this and every ancestor already counted
			}
			c.lastDoc[id] = doc
			c.counts[id]++
		}
	}
}

// Count is the number of documents counted into group id.
func (c *GroupCounts) Count(id int) int { return c.counts[id] }

// BestBranch returns the groups to report, in tree order.
func (c *GroupCounts) BestBranch() []int {
	node := 0
	for {
		nonzero := c.nonzeroChildren(node)
		switch len(nonzero) {
		case 0:
			if node == 0 {
				return nil
			}
			return []int{node}
		case 1:
			node = nonzero[0]
		default:
			return nonzero
		}
	}
}

func (c *GroupCounts) nonzeroChildren(id int) []int {
	var out []int
	for ch := c.data.firstChild[id]; ch >= 0; ch = c.data.nextSibling[ch] {
		if c.counts[ch] > 0 {
			out = append(out, ch)
		}
	}
	return out
}

func (c *GroupCounts) sortGroups(ids []int, by GroupSort) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if by == GroupByCount && c.counts[a] != c.counts[b] {
			return c.counts[a] > c.counts[b]
		}
		return c.data.values[a] < c.data.values[b]
	})
}

// groupResult counts hits into g and assembles the reported groups.
// maxScore normalises the scores of group hits the way the main ranking does.
func (g *GroupData) groupResult(spec GroupSpec, hits []*DocHit, order hitOrder, maxScore float64) *GroupResult {
	counts := g.NewCounts()
	for _, h := range hits {
		counts.Add(h.Doc)
	}
	selected := counts.BestBranch()
	counts.sortGroups(selected, spec.Sort)

	res := &GroupResult{Field: g.field, TotalGroups: len(selected)}
	start := min(max(spec.Start, 0), len(selected))
	end := len(selected)
	if spec.Max > 0 {
		end = min(start+spec.Max, end)
	}
	res.StartGroup, res.EndGroup = start, end

	queues := make(map[int]*DocHitQueue)
	for i, id := range selected[start:end] {
		grp := g.makeGroup(counts, id, spec.Sort)
		grp.Rank = start + i
		res.Groups = append(res.Groups, grp)
		if spec.HitGroup == HitGroupAll || (spec.HitGroup != "" && spec.HitGroup == g.values[id]) {
			queues[id] = NewDocHitQueue(spec.MaxHits, order)
		}
	}
	if len(queues) == 0 {
		return res
	}

	seen := make(map[int]int) // group → last doc inserted
	for _, h := range hits {
		for _, leaf := range g.GroupsOf(h.Doc) {
			for id := leaf; id >= 0; id = g.parent[id] {
				q, ok := queues[id]
				if !ok {
					continue
				}
				if d, ok := seen[id]; ok && d == h.Doc {
					continue
				}
				seen[id] = h.Doc
				q.Insert(h)
			}
		}
	}
	for i, id := range selected[start:end] {
		if q, ok := queues[id]; ok {
			res.Groups[i].Hits = q.drainScaled(maxScore)
		}
	}
	return res
}

func (g *GroupData) makeGroup(c *GroupCounts, id int, by GroupSort) *Group {
	grp := &Group{Value: g.values[id], Count: c.counts[id]}
	kids := c.nonzeroChildren(id)
	c.sortGroups(kids, by)
	for i, k := range kids {
		sub := g.makeGroup(c, k, by)
		sub.Rank = i
		grp.Subgroups = append(grp.Subgroups, sub)
	}
	return grp
}
