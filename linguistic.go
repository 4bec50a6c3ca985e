package chunkspan

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents strips combining marks: "café" → "cafe", "Ångström" → "Angstrom".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Stem returns the English snowball stem of a lowercase word.
func Stem(word string) string {
	return english.Stem(word, false)
}

// WordMap is a lookup table from a word to its replacement, such as a plural
// to its singular.
type WordMap map[string]string

// Lookup returns the replacement of word, or word itself.
func (m WordMap) Lookup(word string) string {
	if r, ok := m[word]; ok {
		return r
	}
	return word
}

// LoadWordMap reads a word map file.
func LoadWordMap(path string) (WordMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseWordMap(f)
}

// ParseWordMap reads lines of the form "word|replacement". Blank lines and
// lines starting with '#' are ignored. Chains (a|b, b|c) are resolved so a
// lookup never needs to be repeated.
func ParseWordMap(r io.Reader) (WordMap, error) {
	m := make(WordMap)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		word, repl, ok := strings.Cut(text, "|")
		word, repl = strings.ToLower(strings.TrimSpace(word)), strings.ToLower(strings.TrimSpace(repl))
		if !ok || word == "" || repl == "" {
			return nil, configError("word map line %d: want word|replacement, got %q", line, text)
		}
		if word != repl {
			m[word] = repl
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for word := range m {
		seen := map[string]bool{word: true}
		target := m[word]
		for {
			next, ok := m[target]
			if !ok {
				break
			}
			if seen[next] || seen[target] {
				return nil, configError("word map cycle through %q", word)
			}
			seen[target] = true
			target = next
		}
		m[word] = target
	}
	return m, nil
}
