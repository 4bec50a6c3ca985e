package chunkspan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	assert.Equal(t, []string{"the", "white", "whale", "1851"}, Analyze("The WHITE whale, (1851)!"))
	assert.Empty(t, Analyze(" -- "))
}

func TestAnalyzeWithConfig_Order(t *testing.T) {
	cfg := AnalyzerConfig{
		FoldAccents:    true,
		Plurals:        WordMap{"cafes": "cafe"},
		EnableStemming: true,
	}
	// Accent folding runs before the plural lookup.
	assert.Equal(t, []string{"cafe", "run"}, AnalyzeWithConfig("Cafés running", cfg))
}

func TestStripMarkers_NodesAndBumps(t *testing.T) {
	text := NodeMarkerText(3, 0) + "call me " + NodeMarkerText(4, 7) + "ishmael" + BumpMarkerText(10) + " some"
	mt := StripMarkers(text, DefaultAnalyzerConfig())

	assert.Equal(t, "call me ishmael some", mt.Plain)
	require.Len(t, mt.Words, 4)
	assert.Equal(t, Word{Term: "call", Pos: 0, Node: 3, NodeWord: 0, Start: 0, End: 4}, mt.Words[0])
	assert.Equal(t, Word{Term: "ishmael", Pos: 2, Node: 4, NodeWord: 7, Start: 8, End: 15}, mt.Words[2])
	assert.Equal(t, 13, mt.Words[3].Pos, "bump adds to the position")
}

func TestStripMarkers_FieldBoundaries(t *testing.T) {
	text := string(FieldStartMarker) + "moby dick" + string(FieldEndMarker)
	mt := StripMarkers(text, DefaultAnalyzerConfig())

	require.Len(t, mt.Words, 4)
	assert.Equal(t, BoundaryStart, mt.Words[0].Boundary)
	assert.Equal(t, FieldStartTerm, mt.Words[0].Term)
	assert.Equal(t, 1, mt.Words[1].Pos)
	assert.Equal(t, BoundaryEnd, mt.Words[3].Boundary)
	assert.Equal(t, 3, mt.Words[3].Pos)
	assert.Equal(t, "moby dick", mt.Plain)
}

func TestStripMarkers_CorruptMarkerPanics(t *testing.T) {
	assert.Panics(t, func() {
		StripMarkers(string(NodeMarker)+"12 unterminated", DefaultAnalyzerConfig())
	})
	assert.Panics(t, func() {
		StripMarkers(BumpMarkerText(-3), DefaultAnalyzerConfig())
	})
}

func TestBigram(t *testing.T) {
	b := Bigram("of", "the")
	assert.True(t, IsBigram(b))
	assert.False(t, IsBigram("whale"))
	left, right := splitBigram(b)
	assert.Equal(t, "of", left)
	assert.Equal(t, "the", right)
	assert.Equal(t, []string{"of", "the"}, strings.Split(b, BigramSeparator))
}

func TestStopSet(t *testing.T) {
	s := NewStopSet([]string{"The", " of "})
	assert.True(t, s.Contains("the"))
	assert.True(t, s.Contains("of"))
	assert.False(t, s.Contains("whale"))
	assert.True(t, NewStopSet(DefaultStopWords()).Contains("was"))
}

func TestFoldAccents(t *testing.T) {
	assert.Equal(t, "cafe", FoldAccents("café"))
	assert.Equal(t, "Angstrom", FoldAccents("Ångström"))
	assert.Equal(t, "plain", FoldAccents("plain"))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "whale", Stem("whales"))
	assert.Equal(t, "hunt", Stem("hunting"))
}

func TestParseWordMap(t *testing.T) {
	m, err := ParseWordMap(strings.NewReader("# plurals\nmice|mouse\n\nGeese | goose\nmouses|mice\n"))
	require.NoError(t, err)
	assert.Equal(t, "mouse", m.Lookup("mice"))
	assert.Equal(t, "goose", m.Lookup("geese"))
	assert.Equal(t, "mouse", m.Lookup("mouses"), "chains resolve to their end")
	assert.Equal(t, "whale", m.Lookup("whale"))
}

func TestParseWordMap_Errors(t *testing.T) {
	for name, input := range map[string]string{
		"missing separator": "mice\n",
		"empty replacement": "mice|\n",
		"cycle":             "a|b\nb|a\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWordMap(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}
