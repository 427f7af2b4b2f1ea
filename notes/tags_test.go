package notes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readRaw(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestAddTagsPreservesOtherFrontmatterKeys(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "note.md", `---
title: My Note
author: someone
tags:
  - existing
---
The body stays put.
`)

	added, err := AddTags(reg, "vault", "note", []string{"fresh", "#hashed", "existing"})
	if err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	if len(added) != 2 || added[0] != "fresh" || added[1] != "hashed" {
		t.Fatalf("added = %v, want [fresh hashed]", added)
	}

	raw := readRaw(t, root, "note.md")
	for _, want := range []string{"title: My Note", "author: someone", "existing", "fresh", "hashed", "The body stays put."} {
		if !strings.Contains(raw, want) {
			t.Fatalf("rewritten note missing %q:\n%s", want, raw)
		}
	}

	fm, body, err := parseNote([]byte(raw))
	if err != nil {
		t.Fatalf("rewritten note does not parse: %v", err)
	}
	if len(fm.tags) != 3 {
		t.Fatalf("tags = %v, want 3 entries", fm.tags)
	}
	if !strings.Contains(body, "The body stays put.") {
		t.Fatalf("body lost: %q", body)
	}
}

func TestAddTagsNoopReturnsNothing(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "note.md", "---\ntags:\n  - a\n---\nbody\n")

	before := readRaw(t, root, "note.md")
	added, err := AddTags(reg, "vault", "note", []string{"a", "#a", " "})
	if err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	if added != nil {
		t.Fatalf("added = %v, want nil", added)
	}
	if after := readRaw(t, root, "note.md"); after != before {
		t.Fatal("no-op AddTags rewrote the file")
	}
}

func TestAddTagsToNoteWithoutFrontmatter(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "plain.md", "just a body\n")

	added, err := AddTags(reg, "vault", "plain", []string{"new"})
	if err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	if len(added) != 1 || added[0] != "new" {
		t.Fatalf("added = %v, want [new]", added)
	}
	raw := readRaw(t, root, "plain.md")
	if !strings.HasPrefix(raw, "---\n") {
		t.Fatalf("frontmatter not added:\n%s", raw)
	}
	if !strings.Contains(raw, "just a body") {
		t.Fatalf("body lost:\n%s", raw)
	}
}

func TestRemoveTags(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "note.md", `---
title: Keep Me
tags:
  - alpha
  - beta
---
body
`)

	removed, err := RemoveTags(reg, "vault", "note", []string{"#beta", "absent"})
	if err != nil {
		t.Fatalf("RemoveTags failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "beta" {
		t.Fatalf("removed = %v, want [beta]", removed)
	}

	raw := readRaw(t, root, "note.md")
	if strings.Contains(raw, "beta") {
		t.Fatalf("beta survived removal:\n%s", raw)
	}
	if !strings.Contains(raw, "alpha") || !strings.Contains(raw, "title: Keep Me") {
		t.Fatalf("removal damaged other content:\n%s", raw)
	}
}

func TestRemoveLastFrontmatterDropsFences(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "note.md", "---\ntags:\n  - only\n---\nbare body\n")

	if _, err := RemoveTags(reg, "vault", "note", []string{"only"}); err != nil {
		t.Fatalf("RemoveTags failed: %v", err)
	}
	raw := readRaw(t, root, "note.md")
	if strings.Contains(raw, "---") {
		t.Fatalf("empty frontmatter left behind:\n%s", raw)
	}
	if !strings.Contains(raw, "bare body") {
		t.Fatalf("body lost:\n%s", raw)
	}
}

func TestRenameTag(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "front.md", "---\ntags:\n  - project\n---\nno inline tags here\n")
	writeNote(t, root, "inline.md", "work on #project today, but not #projects\n")
	writeNote(t, root, "untouched.md", "nothing relevant\n")

	changed, err := RenameTag(reg, "vault", "#project", "initiative")
	if err != nil {
		t.Fatalf("RenameTag failed: %v", err)
	}
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}

	front := readRaw(t, root, "front.md")
	if !strings.Contains(front, "initiative") || strings.Contains(front, "project") {
		t.Fatalf("frontmatter rename wrong:\n%s", front)
	}

	inline := readRaw(t, root, "inline.md")
	if !strings.Contains(inline, "#initiative today") {
		t.Fatalf("inline rename missing:\n%s", inline)
	}
	// #projects is a different tag and must survive.
	if !strings.Contains(inline, "#projects") {
		t.Fatalf("longer tag was clobbered:\n%s", inline)
	}

	if got := readRaw(t, root, "untouched.md"); got != "nothing relevant\n" {
		t.Fatalf("unrelated note rewritten: %q", got)
	}
}

func TestRenameTagValidation(t *testing.T) {
	reg, _ := newTestVault(t)
	if _, err := RenameTag(reg, "vault", "", "new"); err == nil {
		t.Fatal("empty old tag accepted")
	}
	if _, err := RenameTag(reg, "vault", "old", "#"); err == nil {
		t.Fatal("empty new tag accepted")
	}
	if _, err := RenameTag(reg, "ghost", "a", "b"); err == nil {
		t.Fatal("unknown vault accepted")
	}
}
