package chunkspan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b  string
		limit int
		want  int
	}{
		{"whale", "whale", 2, 0},
		{"whale", "whsle", 2, 1},
		{"kitten", "sitting", 5, 3},
		{"café", "cafe", 2, 1},
		{"", "ab", 2, 2},
		{"abcdef", "uvwxyz", 2, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, editDistance(tt.a, tt.b, tt.limit), "%q/%q", tt.a, tt.b)
	}
}

func spellFixture(t *testing.T) *MemoryIndex {
	return buildIndex(t, testConfig().Index,
		textDoc("a", "whale ahoy"),
		textDoc("b", "whale ahoy"),
		textDoc("c", "whale"),
		textDoc("d", "while"),
	)
}

func TestSpeller_Suggest(t *testing.T) {
	sp := NewSpeller(spellFixture(t), SpellConfig{SuggestionsPerTerm: 3, MinDocFreq: 1, TermOccurrenceFactor: 1, Accuracy: 0.5})

	got := sp.Suggest("whsle")
	assert.Equal(t, []Suggestion{
		{Term: "whale", Score: 0.8, DocFreq: 3},
		{Term: "while", Score: 0.8, DocFreq: 1},
	}, got)

	// A known word only gets alternatives at least as frequent as itself.
	assert.Empty(t, sp.Suggest("whale"))
	assert.Empty(t, sp.Suggest(""))
}

func TestSpeller_Cutoffs(t *testing.T) {
	idx := spellFixture(t)

	sp := NewSpeller(idx, SpellConfig{SuggestionsPerTerm: 3, MinDocFreq: 2, TermOccurrenceFactor: 1, Accuracy: 0.5})
	assert.Equal(t, []Suggestion{{Term: "whale", Score: 0.8, DocFreq: 3}}, sp.Suggest("whsle"), "while is below MinDocFreq")

	sp = NewSpeller(idx, SpellConfig{SuggestionsPerTerm: 3, MinDocFreq: 1, TermOccurrenceFactor: 1, Accuracy: 0.9})
	assert.Empty(t, sp.Suggest("whsle"))

	sp = NewSpeller(idx, SpellConfig{SuggestionsPerTerm: 1, MinDocFreq: 1, TermOccurrenceFactor: 1, Accuracy: 0.5})
	assert.Len(t, sp.Suggest("whsle"), 1)
}

func TestSpeller_Best(t *testing.T) {
	sp := NewSpeller(spellFixture(t), SpellConfig{SuggestionsPerTerm: 1, MinDocFreq: 1, TermOccurrenceFactor: 1, Accuracy: 0.5})

	best, ok := sp.Best(Term{Field: FieldText, Text: "whsle"})
	assert.True(t, ok)
	assert.Equal(t, "whale", best)

	_, ok = sp.Best(Term{Field: FieldText, Text: "ahoy"})
	assert.False(t, ok, "known terms are left alone")

	_, ok = (*Speller)(nil).Best(Term{Field: FieldText, Text: "whsle"})
	assert.False(t, ok)
}
