package mcpserver

import (
	"context"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
)

// VaultURIScheme is the only URI scheme accepted on resources/read. The
// dispatcher rejects any other scheme before resolution is attempted.
const VaultURIScheme = "obsidian-vault"

// ResourceProvider lists and reads vault-rooted resources. The dispatcher
// only routes to it; path resolution and containment checks are the
// provider's responsibility.
type ResourceProvider interface {
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}
