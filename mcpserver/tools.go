package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
)

// ToolHandler executes one validated tool call. It must not mutate registry
// state; side effects are limited to external collaborators (the filesystem).
type ToolHandler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// NewTool constructs a StaticTool from a typed args struct A. It reflects a
// JSON Schema from A using invopop/jsonschema, down-converts it to the
// simplified ToolInputSchema surfaced to clients, and wraps the handler with
// strict JSON decoding (unknown fields rejected). The dispatcher validates
// arguments against the descriptor schema before the handler runs; the strict
// decode here is the typed parse of the tool contract.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) StaticTool {
	desc := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}

	handler := func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var a A
		if len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, invalidParamsError("invalid arguments: %v", err)
			}
		}
		return fn(ctx, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go type A into a jsonschema.Schema and
// converts it to the simplified mcp.ToolInputSchema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	s := r.Reflect(new(A))

	// Only object schemas map onto ToolInputSchema. A non-struct A surfaces
	// as an empty strict object.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema node to the
// simplified SchemaProperty shape.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolRegistry is an insertion-ordered mapping from tool name to descriptor
// and handler. It is populated at startup and read-only afterwards, so reads
// need no locking.
type ToolRegistry struct {
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// Register adds a tool. A duplicate name is an error rather than a silent
// overwrite: map assignment would shadow the earlier tool, and the system
// favors failing fast at startup.
func (r *ToolRegistry) Register(def StaticTool) error {
	name := def.Descriptor.Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools = append(r.tools, def.Descriptor)
	r.handlers[name] = def.Handler
	return nil
}

// List returns the tool descriptors in registration order.
func (r *ToolRegistry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Get returns the named tool's descriptor and handler. Exact, case-sensitive
// match.
func (r *ToolRegistry) Get(name string) (mcp.Tool, ToolHandler, bool) {
	h, ok := r.handlers[name]
	if !ok {
		return mcp.Tool{}, nil, false
	}
	for _, t := range r.tools {
		if t.Name == name {
			return t, h, true
		}
	}
	return mcp.Tool{}, nil, false
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(fmt.Sprintf(format, a...))}, IsError: true}
}
