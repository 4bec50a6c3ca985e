package chunkspan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoostFile(t *testing.T) {
	logger, msgs := newRecordingLogger()
	entries, err := ParseBoostFile(strings.NewReader("# boosts\nalpha|1.5\n\nbeta | 0.8\ngamma|lots\ndelta|2\nnokey\n"), logger)
	require.NoError(t, err)

	assert.Equal(t, []BoostEntry{
		{Key: "alpha", Boost: 1.5},
		{Key: "beta", Boost: 0.8},
		{Key: "delta", Boost: 2},
	}, entries)
	assert.Equal(t, 1, countMessages(*msgs, "invalid boost value"))
	assert.Equal(t, 1, countMessages(*msgs, "malformed boost line"))
}

func TestParseBoostFile_OutOfOrder(t *testing.T) {
	for name, input := range map[string]string{
		"descending": "beta|1\nalpha|2\n",
		"duplicate":  "alpha|1\nalpha|2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBoostFile(strings.NewReader(input), discardLogger())
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestApplyBoosts_MergeJoin(t *testing.T) {
	// Documents a, c and d; chunk 1, 3 and 5 are their doc-info chunks.
	idx := buildIndex(t, testConfig().Index, textDoc("a", "one"), textDoc("c", "two"), textDoc("d", "three"))
	logger, msgs := newRecordingLogger()

	set, err := ApplyBoosts(idx, []BoostEntry{{"a", 2}, {"b", 3}, {"d", 0.5}}, logger)
	require.NoError(t, err)

	assert.Equal(t, BoostSet{1: 2, 5: 0.5}, set)
	assert.Equal(t, 1, countMessages(*msgs, "WARN boost key not found in index"))
	assert.Equal(t, 1, countMessages(*msgs, "DEBUG document has no boost"))
	assert.Equal(t, 1.0, set.Boost(3))
	assert.Equal(t, 1.0, BoostSet(nil).Boost(1))
}

func TestApplyBoosts_SkipsDeletedDocuments(t *testing.T) {
	idx := NewMemoryIndex()
	ix, err := NewIndexer(idx, testConfig().Index, discardLogger())
	require.NoError(t, err)
	require.NoError(t, ix.Add(textDoc("a", "one")))
	require.NoError(t, ix.Add(textDoc("b", "two")))
	ix.Commit()
	require.True(t, ix.Delete("a"))
	ix.Commit()

	set, err := ApplyBoosts(idx, []BoostEntry{{"a", 2}, {"b", 3}}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, BoostSet{3: 3}, set)
}

func TestLoadBoostFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("a|2\n"), 0o644))

	entries, err := LoadBoostFile(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []BoostEntry{{"a", 2}}, entries)

	_, err = LoadBoostFile(filepath.Join(t.TempDir(), "missing"), discardLogger())
	assert.ErrorIs(t, err, ErrConfiguration)
}
