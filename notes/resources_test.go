package notes

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestListResources(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "top.md", "top level\n")
	writeNote(t, root, "sub/inner.md", "nested\n")
	writeNote(t, root, "not-a-note.txt", "ignored\n")

	vr := NewVaultResources(reg)
	resources, err := vr.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2: %v", len(resources), resources)
	}

	byURI := map[string]bool{}
	for _, r := range resources {
		if r.MimeType != "text/markdown" {
			t.Fatalf("resource %s has mime type %q", r.URI, r.MimeType)
		}
		byURI[r.URI] = true
	}
	for _, want := range []string{
		"obsidian-vault://vault/top.md",
		"obsidian-vault://vault/sub/inner.md",
	} {
		if !byURI[want] {
			t.Fatalf("missing resource %s in %v", want, resources)
		}
	}
}

func TestListResourcesEscapesNames(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "meeting notes.md", "spaces in the name\n")

	vr := NewVaultResources(reg)
	resources, err := vr.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("got %d resources, want 1", len(resources))
	}
	if got := resources[0].URI; !strings.Contains(got, "meeting%20notes.md") {
		t.Fatalf("URI %q does not escape the space", got)
	}
	if resources[0].Name != "meeting notes.md" {
		t.Fatalf("Name = %q, want the unescaped path", resources[0].Name)
	}
}

func TestReadResourceRoundTrip(t *testing.T) {
	reg, root := newTestVault(t)
	writeNote(t, root, "sub/inner.md", "# Inner\nnested content\n")

	vr := NewVaultResources(reg)
	contents, err := vr.ReadResource(context.Background(), "obsidian-vault://vault/sub/inner.md")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	c := contents[0]
	if c.URI != "obsidian-vault://vault/sub/inner.md" || c.MimeType != "text/markdown" {
		t.Fatalf("contents metadata wrong: %+v", c)
	}
	if c.Text != "# Inner\nnested content\n" {
		t.Fatalf("Text = %q", c.Text)
	}
}

func TestReadResourceRejectsTraversal(t *testing.T) {
	reg, _ := newTestVault(t)
	vr := NewVaultResources(reg)

	_, err := vr.ReadResource(context.Background(), "obsidian-vault://vault/../../etc/passwd")
	if !errors.Is(err, ErrOutsideVault) {
		t.Fatalf("traversal URI returned %v, want ErrOutsideVault", err)
	}
}

func TestReadResourceErrors(t *testing.T) {
	reg, _ := newTestVault(t)
	vr := NewVaultResources(reg)

	cases := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "file:///etc/passwd"},
		{"missing note path", "obsidian-vault://vault"},
		{"unknown vault", "obsidian-vault://ghost/note.md"},
		{"missing note", "obsidian-vault://vault/absent.md"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := vr.ReadResource(context.Background(), tc.uri); err == nil {
				t.Fatalf("ReadResource(%q) succeeded, want error", tc.uri)
			}
		})
	}
}
