// Package fs reads ticket texts from an inbox directory.
package fs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludes picks up plain text, mail and JSON Lines tickets.
var DefaultIncludes = []string{"**/*.txt", "**/*.eml", "**/*.md", "**/*.jsonl"}

// InboxWalker finds ticket files under a directory using doublestar globs.
type InboxWalker struct {
	includes []string
	excludes []string
}

func NewInboxWalker(includes, excludes []string) *InboxWalker {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	return &InboxWalker{
		includes: includes,
		excludes: excludes,
	}
}

// InboxFile is one matched file. Path is absolute, Rel is relative to the
// inbox root with forward slashes.
type InboxFile struct {
	Path string
	Rel  string
	Size int64
}

// Walk returns matching files in lexical order of their relative path.
func (w *InboxWalker) Walk(root string) ([]InboxFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []InboxFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && w.shouldExclude(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.shouldInclude(rel) || w.shouldExclude(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, InboxFile{Path: path, Rel: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

func (w *InboxWalker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *InboxWalker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// ReadTickets returns the ticket texts held by a file. A .jsonl file holds
// one {"text": ...} object per line; any other file is a single ticket.
// Blank texts are skipped.
func ReadTickets(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return readJSONLines(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

func readJSONLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if t := strings.TrimSpace(rec.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, sc.Err()
}
