package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wizenheimer/chunkspan"
)

// folderField is the facet holding a document's directory, as a
// colon-separated path.
const folderField = "folder"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	dir := flag.String("dir", "", "directory of .txt files to index")
	snapshot := flag.String("index", "", "index snapshot to load, or to save after indexing -dir")
	slop := flag.Int("slop", 0, "proximity slop; 0 searches for a phrase")
	unordered := flag.Bool("unordered", false, "match words in any order")
	maxDocs := flag.Int("max", 10, "maximum documents to print")
	group := flag.Bool("group", false, "print folder facet counts")
	spell := flag.Bool("spell", false, "print spelling suggestions")
	sortSpec := flag.String("sort", "", "sort fields, e.g. -folder,title")
	flag.Parse()

	if err := run(*configPath, *dir, *snapshot, *slop, *unordered, *maxDocs, *group, *spell, *sortSpec, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "spanquery: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dir, snapshot string, slop int, unordered bool, maxDocs int, group, spell bool, sortSpec string, words []string) error {
	cfg, err := chunkspan.LoadConfig(configPath)
	if err != nil {
		return err
	}
	chunkspan.SetupLogging(cfg.Logging.Level, cfg.Logging.Format)
	if !slices.Contains(cfg.Index.FacetFields, folderField) {
		cfg.Index.FacetFields = append(cfg.Index.FacetFields, folderField)
	}

	idx, err := openIndex(cfg, dir, snapshot)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		slog.Info("index ready", "documents", idx.DocCount(), "chunks", idx.MaxChunk())
		return nil
	}

	metrics := chunkspan.NewMetrics(prometheus.NewRegistry())
	searcher, err := chunkspan.NewSearcher(snapshot, idx, cfg, chunkspan.WithMetrics(metrics))
	if err != nil {
		return err
	}
	sortFields, err := chunkspan.ParseSortFields(sortSpec)
	if err != nil {
		return err
	}

	var q chunkspan.SpanQuery
	switch {
	case slop == 0 && !unordered:
		q = chunkspan.Phrase(chunkspan.FieldText, words...)
	default:
		near := chunkspan.Near(chunkspan.FieldText, slop, words...)
		near.InOrder = !unordered
		q = near
	}
	req := chunkspan.Request{Query: q, MaxDocs: maxDocs, SortFields: sortFields, Spelling: spell}
	if group {
		req.Groups = []chunkspan.GroupSpec{{Field: folderField}}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := searcher.Search(ctx, req)
	if err != nil {
		if errors.Is(err, chunkspan.ErrExcessiveWork) {
			return fmt.Errorf("query too broad, narrow it down: %w", err)
		}
		return err
	}
	printResult(os.Stdout, res)
	return nil
}

// openIndex loads a snapshot, or indexes dir and saves the snapshot when a
// path is given.
func openIndex(cfg chunkspan.Config, dir, snapshot string) (*chunkspan.MemoryIndex, error) {
	if dir == "" {
		if snapshot == "" {
			return nil, errors.New("need -dir or -index")
		}
		return chunkspan.LoadMemoryIndex(snapshot)
	}

	idx := chunkspan.NewMemoryIndex()
	ix, err := chunkspan.NewIndexer(idx, cfg.Index, slog.Default())
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".txt" {
			return err
		}
		doc, err := readDocument(dir, path)
		if err != nil {
			return err
		}
		return ix.Add(doc)
	})
	if err != nil {
		return nil, err
	}
	ix.Commit()
	slog.Info("indexed directory", "dir", dir, "documents", idx.DocCount())

	if snapshot != "" {
		if err := idx.Save(snapshot); err != nil {
			return nil, err
		}
		slog.Info("saved index", "path", snapshot)
	}
	return idx, nil
}

// readDocument turns a text file into a document: each blank-line separated
// paragraph is a node, the first line is the title.
func readDocument(root, path string) (chunkspan.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chunkspan.Document{}, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return chunkspan.Document{}, err
	}
	rel = filepath.ToSlash(rel)
	doc := chunkspan.Document{Key: rel}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for i, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			doc.Sections = append(doc.Sections, chunkspan.Section{Type: "para", Node: i + 1, Text: para})
		}
	}
	if title, _, _ := strings.Cut(strings.TrimSpace(text), "\n"); title != "" {
		doc.Meta = append(doc.Meta, chunkspan.MetaField{Name: "title", Values: []string{title}})
	}
	if folder := filepath.ToSlash(filepath.Dir(rel)); folder != "." {
		doc.Meta = append(doc.Meta, chunkspan.MetaField{
			Name:   folderField,
			Values: []string{strings.ReplaceAll(folder, "/", chunkspan.GroupPathSeparator)},
		})
	}
	return doc, nil
}

func printResult(w *os.File, res *chunkspan.Result) {
	fmt.Fprintf(w, "%d matching documents, showing %d-%d\n", res.TotalDocs, res.StartDoc+1, res.EndDoc)
	for i, h := range res.Hits {
		fmt.Fprintf(w, "\n%2d. %s  (score %.3f, %d matches)\n", res.StartDoc+i+1, h.Key, h.Score, h.Matches)
		for _, s := range h.Snippets() {
			fmt.Fprintf(w, "    [%d.%d] %s\n", s.Start.Node, s.Start.Word, s.Text)
		}
	}
	for _, g := range res.Groups {
		fmt.Fprintf(w, "\n%s:\n", g.Field)
		printGroups(w, g.Groups, 1)
	}
	for word, sugg := range res.Suggestions {
		alts := make([]string, len(sugg))
		for i, s := range sugg {
			alts[i] = s.Term
		}
		fmt.Fprintf(w, "\ndid you mean %s for %q?\n", strings.Join(alts, " or "), word)
	}
}

func printGroups(w *os.File, groups []*chunkspan.Group, depth int) {
	for _, g := range groups {
		fmt.Fprintf(w, "%s%s (%d)\n", strings.Repeat("  ", depth), g.Value, g.Count)
		printGroups(w, g.Subgroups, depth+1)
	}
}
