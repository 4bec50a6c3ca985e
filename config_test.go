package chunkspan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
index:
  chunkSize: 200
  chunkOverlap: 50
  facetFields: [genre, folder]
limits:
  termLimit: 500
  timeout: 2s
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap)
	assert.Equal(t, []string{"genre", "folder"}, cfg.Index.FacetFields)
	assert.Equal(t, 500, cfg.Limits.TermLimit)
	assert.Equal(t, 2*time.Second, cfg.Limits.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched settings keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Index.BumpValue, cfg.Index.BumpValue)
	assert.Equal(t, def.Limits.MaxSnippets, cfg.Limits.MaxSnippets)
	assert.Equal(t, def.Spell, cfg.Spell)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Index.ChunkSize = 0 }},
		{"overlap equals size", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Index.ChunkOverlap = -1 }},
		{"bump of one", func(c *Config) { c.Index.BumpValue = 1 }},
		{"negative term limit", func(c *Config) { c.Limits.TermLimit = -1 }},
		{"negative cache size", func(c *Config) { c.Cache.MaxEntries = -1 }},
		{"accuracy above one", func(c *Config) { c.Spell.Accuracy = 1.5 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkspan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  termLimit: 10\n"), 0o644))
	t.Setenv("CHUNKSPAN_WORK_LIMIT", "12345")
	t.Setenv("CHUNKSPAN_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Limits.TermLimit)
	assert.Equal(t, int64(12345), cfg.Limits.WorkLimit)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [not, a, map]\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestParseSortFields(t *testing.T) {
	fields, err := ParseSortFields("-date, title;+author")
	require.NoError(t, err)
	assert.Equal(t, []SortField{
		{Field: "date", Descending: true},
		{Field: "title"},
		{Field: "author"},
	}, fields)

	fields, err = ParseSortFields("")
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = ParseSortFields("title,-")
	assert.True(t, errors.Is(err, ErrConfiguration))
}
