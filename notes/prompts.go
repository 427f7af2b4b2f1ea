package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// Prompts builds the prompt set over the given vault registry.
func Prompts(reg *vault.Registry) []mcpserver.StaticPrompt {
	return []mcpserver.StaticPrompt{listVaultsPrompt(reg)}
}

func listVaultsPrompt(reg *vault.Registry) mcpserver.StaticPrompt {
	return mcpserver.StaticPrompt{
		Descriptor: mcp.Prompt{
			Name:        "list-vaults",
			Description: "Summarize the vaults this server exposes",
		},
		Handler: func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
			vaults := reg.Vaults()
			var b strings.Builder
			if len(vaults) == 0 {
				b.WriteString("No vaults are configured on this server.")
			} else {
				fmt.Fprintf(&b, "This server exposes %d vault(s):\n", len(vaults))
				for _, v := range vaults {
					fmt.Fprintf(&b, "- %s (%s)\n", v.Name, v.Path)
				}
			}
			return &mcp.GetPromptResult{
				Description: "Available vaults",
				Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: []mcp.ContentBlock{mcp.TextContent(b.String())},
				}},
			}, nil
		},
	}
}
