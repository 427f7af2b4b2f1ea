package notes

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// VaultResources serves notes as resources addressed by
// obsidian-vault://<vault>/<path> URIs.
type VaultResources struct {
	reg *vault.Registry
}

// NewVaultResources builds a provider over the given registry.
func NewVaultResources(reg *vault.Registry) *VaultResources {
	return &VaultResources{reg: reg}
}

var _ mcpserver.ResourceProvider = (*VaultResources)(nil)

// ListResources enumerates the markdown notes of every vault, in vault
// registration order and then path order within each vault.
func (vr *VaultResources) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	var out []mcp.Resource
	for _, name := range vr.reg.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root, _ := vr.reg.Path(name)
		err := walkMarkdown(root, func(path string) error {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			out = append(out, mcp.Resource{
				URI:      noteURI(name, rel),
				Name:     rel,
				MimeType: "text/markdown",
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("listing vault %s: %w", name, err)
		}
	}
	return out, nil
}

// ReadResource reads the note a URI names. The caller has already checked the
// scheme; this resolves vault and path and enforces containment.
func (vr *VaultResources) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	vaultName, rel, err := parseNoteURI(uri)
	if err != nil {
		return nil, err
	}
	abs, err := resolveInVault(vr.reg, vaultName, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("resource not found: %s", uri)
		}
		return nil, err
	}
	return []mcp.ResourceContents{{
		URI:      uri,
		MimeType: "text/markdown",
		Text:     string(data),
	}}, nil
}

func noteURI(vaultName, rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return mcpserver.VaultURIScheme + "://" + url.PathEscape(vaultName) + "/" + strings.Join(parts, "/")
}

func parseNoteURI(uri string) (vaultName, rel string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("malformed resource URI: %w", err)
	}
	if u.Scheme != mcpserver.VaultURIScheme {
		return "", "", fmt.Errorf("unsupported URI scheme: %s", u.Scheme)
	}
	vaultName = u.Host
	rel = strings.TrimPrefix(u.Path, "/")
	if vaultName == "" || rel == "" {
		return "", "", fmt.Errorf("resource URI must name a vault and a note path: %s", uri)
	}
	return vaultName, rel, nil
}
