package chunkspan

import (
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestPosition_Less(t *testing.T) {
	tests := []struct {
		name  string
		pos   Position
		other Position
		want  bool
	}{
		{"Same chunk, earlier offset", Position{Chunk: 1, Offset: 5}, Position{Chunk: 1, Offset: 10}, true},
		{"Same chunk, later offset", Position{Chunk: 1, Offset: 10}, Position{Chunk: 1, Offset: 5}, false},
		{"Earlier chunk", Position{Chunk: 1, Offset: 100}, Position{Chunk: 2, Offset: 0}, true},
		{"Later chunk", Position{Chunk: 2, Offset: 0}, Position{Chunk: 1, Offset: 100}, false},
		{"BOF before regular", BOF, Position{Chunk: 0, Offset: 0}, true},
		{"Regular before EOF", Position{Chunk: 1, Offset: 0}, EOF, true},
		{"Same position", Position{Chunk: 1, Offset: 5}, Position{Chunk: 1, Offset: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.Less(tt.other); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPosition_IsEnd(t *testing.T) {
	if !EOF.IsEnd() {
		t.Error("EOF.IsEnd() = false, want true")
	}
	if BOF.IsEnd() {
		t.Error("BOF.IsEnd() = true, want false")
	}
	if (Position{Chunk: 3, Offset: 1}).IsEnd() {
		t.Error("regular position reported as end")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// INSERT / DELETE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestSkipList_Insert_OutOfOrder(t *testing.T) {
	sl := NewSkipList()
	positions := []Position{
		{Chunk: 3, Offset: 7},
		{Chunk: 1, Offset: 4},
		{Chunk: 9, Offset: 0},
		{Chunk: 1, Offset: 0},
		{Chunk: 2, Offset: 9},
	}
	for _, p := range positions {
		sl.Insert(p)
	}

	want := []Position{
		{Chunk: 1, Offset: 0},
		{Chunk: 1, Offset: 4},
		{Chunk: 2, Offset: 9},
		{Chunk: 3, Offset: 7},
		{Chunk: 9, Offset: 0},
	}
	got := collect(sl)
	if len(got) != len(want) {
		t.Fatalf("iterated %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, got[i], want[i])
		}
	}
	if sl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", sl.Len())
	}
}

func TestSkipList_Insert_Duplicate(t *testing.T) {
	sl := NewSkipList()
	sl.Insert(Position{Chunk: 1, Offset: 1})
	sl.Insert(Position{Chunk: 1, Offset: 1})

	if sl.Len() != 1 {
		t.Errorf("Len() = %d after duplicate insert, want 1", sl.Len())
	}
}

func TestSkipList_Delete(t *testing.T) {
	sl := NewSkipList()
	for i := 0; i < 5; i++ {
		sl.Insert(Position{Chunk: i, Offset: 0})
	}

	if !sl.Delete(Position{Chunk: 2, Offset: 0}) {
		t.Fatal("Delete() of present key = false")
	}
	if sl.Delete(Position{Chunk: 2, Offset: 0}) {
		t.Error("second Delete() of same key = true")
	}
	if got := sl.FindGreaterOrEqual(Position{Chunk: 2, Offset: 0}); got != (Position{Chunk: 3, Offset: 0}) {
		t.Errorf("FindGreaterOrEqual after delete = %v, want chunk 3", got)
	}
	if sl.Len() != 4 {
		t.Errorf("Len() = %d, want 4", sl.Len())
	}
}

func TestSkipList_Delete_All(t *testing.T) {
	sl := NewSkipList()
	for i := 0; i < 100; i++ {
		sl.Insert(Position{Chunk: i / 10, Offset: i % 10})
	}
	for i := 0; i < 100; i++ {
		sl.Delete(Position{Chunk: i / 10, Offset: i % 10})
	}

	if sl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sl.Len())
	}
	if sl.Height != 1 {
		t.Errorf("Height = %d after deleting everything, want 1", sl.Height)
	}
	if sl.First() != EOF {
		t.Errorf("First() = %v, want EOF", sl.First())
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SEARCH TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestSkipList_FindGreaterOrEqual(t *testing.T) {
	sl := NewSkipList()
	for _, p := range []Position{{1, 0}, {1, 4}, {3, 7}} {
		sl.Insert(p)
	}

	tests := []struct {
		name string
		key  Position
		want Position
	}{
		{"Exact match", Position{1, 4}, Position{1, 4}},
		{"Between offsets", Position{1, 2}, Position{1, 4}},
		{"Next chunk", Position{2, 0}, Position{3, 7}},
		{"Before everything", BOF, Position{1, 0}},
		{"Past the end", Position{3, 8}, EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sl.FindGreaterOrEqual(tt.key); got != tt.want {
				t.Errorf("FindGreaterOrEqual(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSkipList_FindLessThan(t *testing.T) {
	sl := NewSkipList()
	for _, p := range []Position{{1, 0}, {1, 4}, {3, 7}} {
		sl.Insert(p)
	}

	tests := []struct {
		name string
		key  Position
		want Position
	}{
		{"Exact key excluded", Position{1, 4}, Position{1, 0}},
		{"After last", EOF, Position{3, 7}},
		{"Before first", Position{1, 0}, BOF},
		{"Empty gap", Position{2, 5}, Position{1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sl.FindLessThan(tt.key); got != tt.want {
				t.Errorf("FindLessThan(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSkipList_FindLessThan_Empty(t *testing.T) {
	sl := NewSkipList()
	if got := sl.FindLessThan(Position{Chunk: 5}); got != BOF {
		t.Errorf("FindLessThan on empty list = %v, want BOF", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ITERATOR TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestSkipListIterator_Empty(t *testing.T) {
	it := NewSkipList().iterator()
	if it.Next() {
		t.Error("Next() on empty list = true")
	}
	if it.Position() != EOF {
		t.Errorf("Position() = %v, want EOF", it.Position())
	}
}

func TestSkipListIterator_SkipTo(t *testing.T) {
	sl := NewSkipList()
	for i := 0; i < 10; i++ {
		sl.Insert(Position{Chunk: i, Offset: i})
	}
	it := sl.iterator()

	if !it.SkipTo(Position{Chunk: 4}) {
		t.Fatal("SkipTo(chunk 4) = false")
	}
	if got := it.Position(); got != (Position{Chunk: 4, Offset: 4}) {
		t.Errorf("Position() = %v, want 4:4", got)
	}

	// Skipping backwards stays put.
	if !it.SkipTo(Position{Chunk: 1}) {
		t.Fatal("backward SkipTo = false")
	}
	if got := it.Position(); got != (Position{Chunk: 4, Offset: 4}) {
		t.Errorf("backward SkipTo moved to %v", got)
	}

	if !it.Next() || it.Position() != (Position{Chunk: 5, Offset: 5}) {
		t.Errorf("Next() after SkipTo = %v, want 5:5", it.Position())
	}
	if it.SkipTo(Position{Chunk: 10}) {
		t.Error("SkipTo past the end = true")
	}
	if it.SkipTo(Position{Chunk: 0}) {
		t.Error("SkipTo after exhaustion = true")
	}
}

func TestSkipList_LargeDataset(t *testing.T) {
	sl := NewSkipList()
	for i := 999; i >= 0; i-- {
		sl.Insert(Position{Chunk: i / 50, Offset: i % 50})
	}

	got := collect(sl)
	if len(got) != 1000 {
		t.Fatalf("iterated %d positions, want 1000", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Less(got[i]) {
			t.Fatalf("positions out of order at %d: %v then %v", i, got[i-1], got[i])
		}
	}
}

func collect(sl *SkipList) []Position {
	var out []Position
	it := sl.iterator()
	for it.Next() {
		out = append(out, it.Position())
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// BENCHMARKS
// ═══════════════════════════════════════════════════════════════════════════════

func BenchmarkSkipList_Insert(b *testing.B) {
	sl := NewSkipList()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sl.Insert(Position{Chunk: i / 100, Offset: i % 100})
	}
}

func BenchmarkSkipListIterator_SkipTo(b *testing.B) {
	sl := NewSkipList()
	for i := 0; i < 10000; i++ {
		sl.Insert(Position{Chunk: i, Offset: 0})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := sl.iterator()
		for c := 0; c < 10000; c += 97 {
			it.SkipTo(Position{Chunk: c})
		}
	}
}
