package chunkspan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig uses small chunks so a handful of words spans several of them.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Index.ChunkSize = 10
	cfg.Index.ChunkOverlap = 4
	cfg.Index.FacetFields = []string{"genre"}
	cfg.Cache.PollInterval = 0
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingHandler keeps the messages of every record it sees.
type recordingHandler struct {
	slog.Handler
	messages *[]string
}

func newRecordingLogger() (*slog.Logger, *[]string) {
	var msgs []string
	h := recordingHandler{
		Handler:  slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}),
		messages: &msgs,
	}
	return slog.New(h), &msgs
}

func (h recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	*h.messages = append(*h.messages, r.Level.String()+" "+r.Message)
	return nil
}

func (h recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return recordingHandler{Handler: h.Handler.WithAttrs(attrs), messages: h.messages}
}

func (h recordingHandler) WithGroup(name string) slog.Handler {
	return recordingHandler{Handler: h.Handler.WithGroup(name), messages: h.messages}
}

func countMessages(msgs []string, substr string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func textDoc(key, text string, meta ...MetaField) Document {
	return Document{
		Key:      key,
		Sections: []Section{{Type: "para", Node: 1, Text: text}},
		Meta:     meta,
	}
}

func buildIndex(t testing.TB, cfg IndexConfig, docs ...Document) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	ix, err := NewIndexer(idx, cfg, discardLogger())
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, ix.Add(d))
	}
	ix.Commit()
	return idx
}

func newTestSearcher(t testing.TB, cfg Config, idx *MemoryIndex, opts ...SearcherOption) *Searcher {
	t.Helper()
	opts = append([]SearcherOption{WithLogger(discardLogger())}, opts...)
	s, err := NewSearcher("test", idx, cfg, opts...)
	require.NoError(t, err)
	return s
}

// filler returns n distinct words, prefixaa prefixab ..., joined by spaces.
func filler(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%c%c", prefix, 'a'+i/26, 'a'+i%26)
	}
	return strings.Join(parts, " ")
}
