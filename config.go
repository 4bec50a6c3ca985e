package chunkspan

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Limits  Limits        `yaml:"limits"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Spell   SpellConfig   `yaml:"spell"`
}

// IndexConfig describes how documents are split into chunks. A reader and
// the queries evaluated against it must agree on these values.
type IndexConfig struct {
	ChunkSize      int      `yaml:"chunkSize"`
	ChunkOverlap   int      `yaml:"chunkOverlap"`
	BumpValue      int      `yaml:"bumpValue"`
	StopWords      []string `yaml:"stopWords"`
	EnableStemming bool     `yaml:"enableStemming"`
	FoldAccents    bool     `yaml:"foldAccents"`
	PluralMap      string   `yaml:"pluralMap"`
	FacetFields    []string `yaml:"facetFields"`
}

// Limits bounds the work a single query may perform and the size of what
// it returns.
type Limits struct {
	TermLimit         int           `yaml:"termLimit"`
	WorkLimit         int64         `yaml:"workLimit"`
	WorkCheckInterval int64         `yaml:"workCheckInterval"`
	MaxSnippets       int           `yaml:"maxSnippets"`
	MaxContext        int           `yaml:"maxContext"`
	MaxDocs           int           `yaml:"maxDocs"`
	Timeout           time.Duration `yaml:"timeout"`
}

// CacheConfig controls the per-generation artifact cache.
type CacheConfig struct {
	MaxEntries   int           `yaml:"maxEntries"`
	TTL          time.Duration `yaml:"ttl"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SpellConfig tunes spelling suggestions.
type SpellConfig struct {
	SuggestionsPerTerm   int     `yaml:"suggestionsPerTerm"`
	MinDocFreq           int     `yaml:"minDocFreq"`
	TermOccurrenceFactor float64 `yaml:"termOccurrenceFactor"`
	Accuracy             float64 `yaml:"accuracy"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Index: IndexConfig{
			ChunkSize:    100,
			ChunkOverlap: 20,
			BumpValue:    1000,
			StopWords:    DefaultStopWords(),
		},
		Limits: Limits{
			TermLimit:         50000,
			WorkLimit:         0,
			WorkCheckInterval: 1000,
			MaxSnippets:       3,
			MaxContext:        80,
			MaxDocs:           10,
		},
		Cache: CacheConfig{
			MaxEntries:   64,
			TTL:          30 * time.Minute,
			PollInterval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Spell: SpellConfig{
			SuggestionsPerTerm:   1,
			MinDocFreq:           2,
			TermOccurrenceFactor: 10,
			Accuracy:             0.5,
		},
	}
}

// ParseConfig decodes YAML on top of the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, newQueryError(ErrConfiguration, err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML file (if path is non-empty), applies CHUNKSPAN_*
// environment overrides and validates.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, newQueryError(ErrConfiguration, err, "parsing config file %s", path)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHUNKSPAN_TERM_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.TermLimit = n
		}
	}
	if v := os.Getenv("CHUNKSPAN_WORK_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.WorkLimit = n
		}
	}
	if v := os.Getenv("CHUNKSPAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Limits.Timeout = d
		}
	}
	if v := os.Getenv("CHUNKSPAN_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHUNKSPAN_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate reports the first inconsistent setting as an ErrConfiguration.
func (c Config) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return err
	}
	l := c.Limits
	if l.TermLimit < 0 || l.WorkLimit < 0 || l.MaxSnippets < 0 || l.MaxContext < 0 || l.MaxDocs < 0 {
		return configError("limits must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return configError("cache.maxEntries must not be negative")
	}
	if c.Spell.Accuracy < 0 || c.Spell.Accuracy > 1 {
		return configError("spell.accuracy must be within [0,1], got %g", c.Spell.Accuracy)
	}
	return nil
}

// Validate checks the chunk geometry.
func (c IndexConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return configError("chunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return configError("chunkOverlap must be within [0,chunkSize), got %d", c.ChunkOverlap)
	}
	if c.BumpValue <= 1 {
		return configError("bumpValue must be greater than 1, got %d", c.BumpValue)
	}
	return nil
}

// SortField is one entry of a sortMetaFields list.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields parses "-date,title,+author" into sort fields. A leading
// '-' sorts descending, '+' or nothing sorts ascending.
func ParseSortFields(spec string) ([]SortField, error) {
	var fields []SortField
	for _, part := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		f := SortField{Field: part}
		switch part[0] {
		case '-':
			f.Descending = true
			f.Field = part[1:]
		case '+':
			f.Field = part[1:]
		}
		if f.Field == "" {
			return nil, configError("empty sort field in %q", spec)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
