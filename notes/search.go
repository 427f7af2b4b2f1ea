package notes

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// SearchResult is one ranked match from a vault search.
type SearchResult struct {
	Path    string `json:"path"`
	Score   int    `json:"score"`
	Snippet string `json:"snippet"`
}

// DefaultSearchLimit caps results when the caller does not specify a limit.
const DefaultSearchLimit = 20

// SearchVault scans every markdown note in the vault for the query
// (case-insensitive substring match) and returns matches ranked by occurrence
// count, ties broken by path for determinism.
func SearchVault(reg *vault.Registry, vaultName, query string, limit int) ([]SearchResult, error) {
	root, ok := reg.Path(vaultName)
	if !ok {
		return nil, fmt.Errorf("unknown vault: %s", vaultName)
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var results []SearchResult
	err := walkMarkdown(root, func(path string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable notes are skipped, not fatal
		}
		lower := strings.ToLower(string(content))
		count := strings.Count(lower, query)
		if count == 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		results = append(results, SearchResult{
			Path:    rel,
			Score:   count,
			Snippet: snippetAround(string(content), strings.Index(lower, query)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// snippetAround extracts a short window of context around the first match.
func snippetAround(content string, idx int) string {
	const window = 80
	if idx < 0 {
		return ""
	}
	start := idx - window/2
	if start < 0 {
		start = 0
	}
	end := idx + window/2
	if end > len(content) {
		end = len(content)
	}
	snippet := strings.TrimSpace(content[start:end])
	return strings.ReplaceAll(snippet, "\n", " ")
}

// walkMarkdown visits every .md file under root, skipping hidden directories
// (including the vault marker directory).
func walkMarkdown(root string, visit func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		return visit(path)
	})
}
