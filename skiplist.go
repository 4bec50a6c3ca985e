package chunkspan

import (
	"math"
	"math/rand"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSTINGS SKIP LIST
// ═══════════════════════════════════════════════════════════════════════════════
// Every term's occurrences are kept in a skip list ordered by (chunk, offset):
//
// Level 2: HEAD ----------------------------> [c3:7] -----------------> NULL
// Level 1: HEAD ---------> [c1:4] ----------> [c3:7] -------> [c9:0] --> NULL
// Level 0: HEAD -> [c1:0] -> [c1:4] -> [c2:9] -> [c3:7] -> [c4:1] -> [c9:0] -> NULL
//
// Span evaluators only ever walk forward, so the operations that matter are
// "first position >= key" (SkipTo) and sequential iteration along level 0.
// ═══════════════════════════════════════════════════════════════════════════════

const MaxHeight = 32

// Position identifies one word occurrence inside one chunk.
type Position struct {
	Chunk  int
	Offset int
}

// Sentinel positions: BOF sorts before and EOF after every real position.
var (
	BOF = Position{Chunk: math.MinInt, Offset: math.MinInt}
	EOF = Position{Chunk: math.MaxInt, Offset: math.MaxInt}
)

// IsEnd reports whether p is the EOF sentinel.
func (p Position) IsEnd() bool { return p == EOF }

// Less orders positions by chunk, then offset.
func (p Position) Less(other Position) bool {
	if p.Chunk != other.Chunk {
		return p.Chunk < other.Chunk
	}
	return p.Offset < other.Offset
}

// Node is a skip list element.
type Node struct {
	Key   Position
	Tower [MaxHeight]*Node
}

// SkipList is an ordered set of positions.
type SkipList struct {
	Head   *Node
	Height int
	length int
	rng    *rand.Rand
}

// NewSkipList creates an empty list. The seed only affects tower heights.
func NewSkipList() *SkipList {
	return &SkipList{
		Head:   &Node{},
		Height: 1,
		rng:    rand.New(rand.NewSource(0x5eed)),
	}
}

// Len returns the number of stored positions.
func (sl *SkipList) Len() int { return sl.length }

// search returns the node equal to key (or nil) and the per-level
// predecessors of key.
func (sl *SkipList) search(key Position) (*Node, [MaxHeight]*Node) {
	var journey [MaxHeight]*Node
	current := sl.Head
	for level := sl.Height - 1; level >= 0; level-- {
		for next := current.Tower[level]; next != nil && next.Key.Less(key); next = current.Tower[level] {
			current = next
		}
		journey[level] = current
	}
	if next := current.Tower[0]; next != nil && next.Key == key {
		return next, journey
	}
	return nil, journey
}

// Insert adds key; inserting an existing key is a no-op.
func (sl *SkipList) Insert(key Position) {
	found, journey := sl.search(key)
	if found != nil {
		return
	}

	height := sl.randomHeight()
	node := &Node{Key: key}
	for level := 0; level < height; level++ {
		pred := journey[level]
		if pred == nil {
			pred = sl.Head
		}
		node.Tower[level] = pred.Tower[level]
		pred.Tower[level] = node
	}
	if height > sl.Height {
		sl.Height = height
	}
	sl.length++
}

// Delete removes key and reports whether it was present.
func (sl *SkipList) Delete(key Position) bool {
	found, journey := sl.search(key)
	if found == nil {
		return false
	}
	for level := 0; level < sl.Height; level++ {
		if journey[level].Tower[level] != found {
			break
		}
		journey[level].Tower[level] = found.Tower[level]
	}
	for sl.Height > 1 && sl.Head.Tower[sl.Height-1] == nil {
		sl.Height--
	}
	sl.length--
	return true
}

// seekNode returns the first node whose key is >= key, or nil.
func (sl *SkipList) seekNode(key Position) *Node {
	_, journey := sl.search(key)
	return journey[0].Tower[0]
}

// FindGreaterOrEqual returns the first position >= key, or EOF.
func (sl *SkipList) FindGreaterOrEqual(key Position) Position {
	if n := sl.seekNode(key); n != nil {
		return n.Key
	}
	return EOF
}

// FindLessThan returns the last position < key, or BOF.
func (sl *SkipList) FindLessThan(key Position) Position {
	_, journey := sl.search(key)
	if journey[0] == nil || journey[0] == sl.Head {
		return BOF
	}
	return journey[0].Key
}

// First returns the smallest stored position, or EOF when empty.
func (sl *SkipList) First() Position {
	if n := sl.Head.Tower[0]; n != nil {
		return n.Key
	}
	return EOF
}

func (sl *SkipList) randomHeight() int {
	height := 1
	for sl.rng.Float64() < 0.5 && height < MaxHeight {
		height++
	}
	return height
}

// skipListIterator walks level 0 and implements PositionIterator.
type skipListIterator struct {
	list    *SkipList
	current *Node
	started bool
}

func (sl *SkipList) iterator() *skipListIterator {
	return &skipListIterator{list: sl}
}

func (it *skipListIterator) Next() bool {
	if !it.started {
		it.started = true
		it.current = it.list.Head.Tower[0]
	} else if it.current != nil {
		it.current = it.current.Tower[0]
	}
	return it.current != nil
}

func (it *skipListIterator) SkipTo(target Position) bool {
	// Forward-only: never move back past the current node.
	if it.started {
		if it.current == nil {
			return false
		}
		if !it.current.Key.Less(target) {
			return true
		}
	}
	it.started = true
	it.current = it.list.seekNode(target)
	return it.current != nil
}

func (it *skipListIterator) Position() Position {
	if it.current == nil {
		return EOF
	}
	return it.current.Key
}
