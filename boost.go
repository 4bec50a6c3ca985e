package chunkspan

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DOCUMENT BOOSTS
// ═══════════════════════════════════════════════════════════════════════════════
// A boost file lists per-document score multipliers, one "key|boost" line
// per document, keys in strictly ascending order:
//
//	alpha|1.5
//	beta|0.8
//	delta|2
//
// The file is merge-joined against the sorted key terms of the index:
//
//	file:   a  b     d
//	index:  a     c  d
//	        ✓  ⚠  ·  ✓      ⚠ warning "not found in index", · debug note
//
// A line with an unparseable boost is a warning and is skipped. Keys out of
// order make the whole file a configuration error, since the join depends on
// the order.
// ═══════════════════════════════════════════════════════════════════════════════

// BoostEntry is one line of a boost file.
type BoostEntry struct {
	Key   string
	Boost float64
}

// BoostSet maps documents to their boost. A nil set boosts nothing.
type BoostSet map[int]float64

// Boost returns the multiplier of doc, 1 when it has none.
func (b BoostSet) Boost(doc int) float64 {
	if v, ok := b[doc]; ok {
		return v
	}
	return 1
}

// LoadBoostFile reads and parses a boost file.
func LoadBoostFile(path string, logger *slog.Logger) ([]BoostEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configError("boost file: %v", err)
	}
	defer f.Close()
	return ParseBoostFile(f, logger)
}

// ParseBoostFile parses boost lines. Blank lines and '#' comments are ignored.
func ParseBoostFile(r io.Reader, logger *slog.Logger) ([]BoostEntry, error) {
	warn := newWarnLimiter(componentLogger(logger, "boost"), "boost file")
	var entries []BoostEntry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "|")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			warn.Warn("malformed boost line", slog.Int("line", line), slog.String("text", text))
			continue
		}
		boost, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || boost < 0 {
			warn.Warn("invalid boost value", slog.Int("line", line), slog.String("value", value))
			continue
		}
		if n := len(entries); n > 0 && key <= entries[n-1].Key {
			return nil, configError("boost file line %d: key %q is not after %q", line, key, entries[n-1].Key)
		}
		entries = append(entries, BoostEntry{Key: key, Boost: boost})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApplyBoosts resolves boost entries to documents of r. Keys missing from the
// index are warned about (capped); index keys missing from the file keep a
// boost of 1.
func ApplyBoosts(r IndexReader, entries []BoostEntry, logger *slog.Logger) (BoostSet, error) {
	logger = componentLogger(logger, "boost")
	warn := newWarnLimiter(logger, "boost keys")
	set := make(BoostSet)

	it := r.Terms(FieldKey, "")
	more := it.Next()
	for _, e := range entries {
		for more && it.Term().Text < e.Key {
			logger.Debug("document has no boost", slog.String("key", it.Term().Text))
			more = it.Next()
		}
		if !more || it.Term().Text != e.Key {
			warn.Warn("boost key not found in index", slog.String("key", e.Key))
			continue
		}
		doc, err := liveDocOf(r, it.Term())
		if err != nil {
			return nil, err
		}
		if doc >= 0 {
			set[doc] = e.Boost
		}
		more = it.Next()
	}
	for ; more; more = it.Next() {
		logger.Debug("document has no boost", slog.String("key", it.Term().Text))
	}
	return set, nil
}

// liveDocOf returns the live document of a key term, or -1.
func liveDocOf(r IndexReader, key Term) (int, error) {
	pos, err := r.TermPositions(key)
	if err != nil {
		return -1, err
	}
	for pos.Next() {
		if c := pos.Position().Chunk; !r.IsDeleted(c) {
			return c, nil
		}
	}
	return -1, nil
}
