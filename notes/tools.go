package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// Tools builds the full tool set over the given vault registry, in the order
// clients should discover them.
func Tools(reg *vault.Registry) []mcpserver.StaticTool {
	return []mcpserver.StaticTool{
		readNoteTool(reg),
		createNoteTool(reg),
		editNoteTool(reg),
		moveNoteTool(reg),
		deleteNoteTool(reg),
		createDirectoryTool(reg),
		addTagsTool(reg),
		removeTagsTool(reg),
		renameTagTool(reg),
		searchVaultTool(reg),
		listVaultsTool(reg),
	}
}

type readNoteArgs struct {
	Vault string `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Path  string `json:"path" jsonschema:"description=Path of the note relative to the vault root"`
}

func readNoteTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("read-note", "Read the contents of a note",
		func(ctx context.Context, args readNoteArgs) (*mcp.CallToolResult, error) {
			content, err := ReadNote(reg, args.Vault, args.Path)
			if err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(content), nil
		})
}

type createNoteArgs struct {
	Vault   string `json:"vault" jsonschema:"description=Name of the vault to create the note in"`
	Path    string `json:"path" jsonschema:"description=Path of the new note relative to the vault root"`
	Content string `json:"content" jsonschema:"description=Initial note content"`
}

func createNoteTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("create-note", "Create a new note; fails if it already exists",
		func(ctx context.Context, args createNoteArgs) (*mcp.CallToolResult, error) {
			if _, err := CreateNote(reg, args.Vault, args.Path, args.Content); err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("created %s in vault %s", args.Path, args.Vault)), nil
		})
}

type editNoteArgs struct {
	Vault     string `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Path      string `json:"path" jsonschema:"description=Path of the note relative to the vault root"`
	Operation string `json:"operation" jsonschema:"description=Edit mode,enum=append,enum=replace"`
	Content   string `json:"content" jsonschema:"description=Content to append or to replace the note with"`
}

func editNoteTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("edit-note", "Append to or replace an existing note",
		func(ctx context.Context, args editNoteArgs) (*mcp.CallToolResult, error) {
			if err := EditNote(reg, args.Vault, args.Path, args.Operation, args.Content); err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("edited %s (%s)", args.Path, args.Operation)), nil
		})
}

type moveNoteArgs struct {
	Vault       string `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Source      string `json:"source" jsonschema:"description=Current note path relative to the vault root"`
	Destination string `json:"destination" jsonschema:"description=New note path relative to the vault root"`
}

func moveNoteTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("move-note", "Move or rename a note within its vault",
		func(ctx context.Context, args moveNoteArgs) (*mcp.CallToolResult, error) {
			if err := MoveNote(reg, args.Vault, args.Source, args.Destination); err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("moved %s to %s", args.Source, args.Destination)), nil
		})
}

type deleteNoteArgs struct {
	Vault string `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Path  string `json:"path" jsonschema:"description=Path of the note relative to the vault root"`
}

func deleteNoteTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("delete-note", "Delete a note",
		func(ctx context.Context, args deleteNoteArgs) (*mcp.CallToolResult, error) {
			if err := DeleteNote(reg, args.Vault, args.Path); err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("deleted %s", args.Path)), nil
		})
}

type createDirectoryArgs struct {
	Vault string `json:"vault" jsonschema:"description=Name of the vault to create the directory in"`
	Path  string `json:"path" jsonschema:"description=Directory path relative to the vault root"`
}

func createDirectoryTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("create-directory", "Create a directory inside a vault",
		func(ctx context.Context, args createDirectoryArgs) (*mcp.CallToolResult, error) {
			if err := CreateDirectory(reg, args.Vault, args.Path); err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("created directory %s", args.Path)), nil
		})
}

type addTagsArgs struct {
	Vault string   `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Path  string   `json:"path" jsonschema:"description=Path of the note relative to the vault root"`
	Tags  []string `json:"tags" jsonschema:"description=Tags to add (leading # optional)"`
}

func addTagsTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("add-tags", "Add tags to a note's frontmatter",
		func(ctx context.Context, args addTagsArgs) (*mcp.CallToolResult, error) {
			added, err := AddTags(reg, args.Vault, args.Path, args.Tags)
			if err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			if len(added) == 0 {
				return mcpserver.TextResult("no new tags to add"), nil
			}
			return mcpserver.TextResult("added tags: " + strings.Join(added, ", ")), nil
		})
}

type removeTagsArgs struct {
	Vault string   `json:"vault" jsonschema:"description=Name of the vault containing the note"`
	Path  string   `json:"path" jsonschema:"description=Path of the note relative to the vault root"`
	Tags  []string `json:"tags" jsonschema:"description=Tags to remove (leading # optional)"`
}

func removeTagsTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("remove-tags", "Remove tags from a note's frontmatter",
		func(ctx context.Context, args removeTagsArgs) (*mcp.CallToolResult, error) {
			removed, err := RemoveTags(reg, args.Vault, args.Path, args.Tags)
			if err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			if len(removed) == 0 {
				return mcpserver.TextResult("no matching tags to remove"), nil
			}
			return mcpserver.TextResult("removed tags: " + strings.Join(removed, ", ")), nil
		})
}

type renameTagArgs struct {
	Vault  string `json:"vault" jsonschema:"description=Name of the vault to rename the tag in"`
	OldTag string `json:"oldTag" jsonschema:"description=Existing tag name (leading # optional)"`
	NewTag string `json:"newTag" jsonschema:"description=Replacement tag name (leading # optional)"`
}

func renameTagTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("rename-tag", "Rename a tag across every note in a vault",
		func(ctx context.Context, args renameTagArgs) (*mcp.CallToolResult, error) {
			changed, err := RenameTag(reg, args.Vault, args.OldTag, args.NewTag)
			if err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			return mcpserver.TextResult(fmt.Sprintf("renamed tag in %d note(s)", changed)), nil
		})
}

type searchVaultArgs struct {
	Vault string `json:"vault" jsonschema:"description=Name of the vault to search"`
	Query string `json:"query" jsonschema:"description=Text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results"`
}

func searchVaultTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("search-vault", "Search a vault's notes for text, ranked by match count",
		func(ctx context.Context, args searchVaultArgs) (*mcp.CallToolResult, error) {
			results, err := SearchVault(reg, args.Vault, args.Query, args.Limit)
			if err != nil {
				return mcpserver.Errorf("%v", err), nil
			}
			b, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(string(b)), nil
		})
}

type listVaultsArgs struct{}

func listVaultsTool(reg *vault.Registry) mcpserver.StaticTool {
	return mcpserver.NewTool("list-available-vaults", "List the vaults this server exposes",
		func(ctx context.Context, args listVaultsArgs) (*mcp.CallToolResult, error) {
			names := reg.Names()
			if len(names) == 0 {
				return mcpserver.TextResult("no vaults configured"), nil
			}
			return mcpserver.TextResult(strings.Join(names, "\n")), nil
		})
}
