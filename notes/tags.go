package notes

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// noteFrontmatter is the subset of frontmatter the tag operations care about.
// Everything else is preserved verbatim through rewrite.
type noteFrontmatter struct {
	rest map[string]any
	tags []string
}

// parseNote splits a note into frontmatter and body. A note without
// frontmatter yields an empty matter map and the full content as body.
func parseNote(content []byte) (*noteFrontmatter, string, error) {
	matter := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(content), &matter)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	fm := &noteFrontmatter{rest: matter}
	if raw, ok := matter["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, t := range v {
				if s, ok := t.(string); ok {
					fm.tags = append(fm.tags, s)
				}
			}
		case string:
			for _, s := range strings.Fields(v) {
				fm.tags = append(fm.tags, s)
			}
		}
		delete(matter, "tags")
	}
	return fm, string(body), nil
}

// render reassembles the note. Non-tag frontmatter keys survive untouched;
// tags are emitted as a YAML list. A note with no frontmatter left gets none.
func (fm *noteFrontmatter) render(body string) ([]byte, error) {
	out := map[string]any{}
	for k, v := range fm.rest {
		out[k] = v
	}
	if len(fm.tags) > 0 {
		out["tags"] = fm.tags
	}
	if len(out) == 0 {
		return []byte(body), nil
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// normalizeTag strips a leading '#' and surrounding space so "#project" and
// "project" are the same tag.
func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "#")
}

// AddTags adds the given tags to a note's frontmatter, skipping duplicates.
// It returns the tags actually added.
func AddTags(reg *vault.Registry, vaultName, rel string, tags []string) ([]string, error) {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}
	fm, body, err := parseNote(content)
	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(fm.tags))
	for _, t := range fm.tags {
		have[normalizeTag(t)] = true
	}
	var added []string
	for _, t := range tags {
		n := normalizeTag(t)
		if n == "" || have[n] {
			continue
		}
		fm.tags = append(fm.tags, n)
		have[n] = true
		added = append(added, n)
	}
	if len(added) == 0 {
		return nil, nil
	}

	next, err := fm.render(body)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, next, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}
	return added, nil
}

// RemoveTags removes the given tags from a note's frontmatter. It returns the
// tags actually removed.
func RemoveTags(reg *vault.Registry, vaultName, rel string, tags []string) ([]string, error) {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}
	fm, body, err := parseNote(content)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[normalizeTag(t)] = true
	}
	var kept, removed []string
	for _, t := range fm.tags {
		if drop[normalizeTag(t)] {
			removed = append(removed, normalizeTag(t))
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	fm.tags = kept

	next, err := fm.render(body)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, next, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}
	return removed, nil
}

// RenameTag renames a tag across every markdown note in the vault, in both
// frontmatter and inline #tag occurrences in note bodies. It returns the
// number of notes changed.
func RenameTag(reg *vault.Registry, vaultName, oldTag, newTag string) (int, error) {
	root, ok := reg.Path(vaultName)
	if !ok {
		return 0, fmt.Errorf("unknown vault: %s", vaultName)
	}
	oldN, newN := normalizeTag(oldTag), normalizeTag(newTag)
	if oldN == "" || newN == "" {
		return 0, fmt.Errorf("tag names must be non-empty")
	}

	changed := 0
	err := walkMarkdown(root, func(path string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}
		fm, body, err := parseNote(content)
		if err != nil {
			// Leave unparseable notes alone rather than corrupting them.
			return nil
		}

		touched := false
		for i, t := range fm.tags {
			if normalizeTag(t) == oldN {
				fm.tags[i] = newN
				touched = true
			}
		}
		if newBody := renameInlineTag(body, oldN, newN); newBody != body {
			body = newBody
			touched = true
		}
		if !touched {
			return nil
		}

		next, err := fm.render(body)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, next, 0o644); err != nil {
			return fmt.Errorf("failed to write note: %w", err)
		}
		changed++
		return nil
	})
	if err != nil {
		return changed, err
	}
	return changed, nil
}

// renameInlineTag replaces #old with #new where the occurrence is a whole
// tag, not a prefix of a longer one.
func renameInlineTag(body, oldTag, newTag string) string {
	var b strings.Builder
	for i := 0; i < len(body); {
		j := strings.Index(body[i:], "#"+oldTag)
		if j < 0 {
			b.WriteString(body[i:])
			break
		}
		j += i
		end := j + 1 + len(oldTag)
		if end < len(body) && isTagRune(rune(body[end])) {
			b.WriteString(body[i:end])
			i = end
			continue
		}
		b.WriteString(body[i:j])
		b.WriteString("#" + newTag)
		i = end
	}
	return b.String()
}

func isTagRune(r rune) bool {
	return r == '-' || r == '_' || r == '/' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
