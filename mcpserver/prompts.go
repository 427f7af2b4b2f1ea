package mcpserver

import (
	"context"
	"fmt"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
)

// PromptHandler renders a prompt into messages given caller-supplied
// arguments.
type PromptHandler func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its renderer.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptRegistry is an insertion-ordered mapping from prompt name to
// descriptor and renderer. Populated at startup, read-only afterwards.
type PromptRegistry struct {
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler
}

// NewPromptRegistry builds an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{handlers: make(map[string]PromptHandler)}
}

// Register adds a prompt, failing on a duplicate name.
func (r *PromptRegistry) Register(def StaticPrompt) error {
	name := def.Descriptor.Name
	if name == "" {
		return fmt.Errorf("prompt has no name")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("prompt already registered: %s", name)
	}
	r.prompts = append(r.prompts, def.Descriptor)
	r.handlers[name] = def.Handler
	return nil
}

// List returns the prompt descriptors in registration order.
func (r *PromptRegistry) List() []mcp.Prompt {
	out := make([]mcp.Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Get returns the named prompt's descriptor and renderer. Exact,
// case-sensitive match.
func (r *PromptRegistry) Get(name string) (mcp.Prompt, PromptHandler, bool) {
	h, ok := r.handlers[name]
	if !ok {
		return mcp.Prompt{}, nil, false
	}
	for _, p := range r.prompts {
		if p.Name == name {
			return p, h, true
		}
	}
	return mcp.Prompt{}, nil, false
}
