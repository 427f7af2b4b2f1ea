package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// MCP method names and notifications.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// Prompts
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	// Resources
	ResourcesListMethod Method = "resources/list"
	ResourcesReadMethod Method = "resources/read"

	// General
	PingMethod                  Method = "ping"
	CancelledNotificationMethod Method = "notifications/cancelled"
)

// BaseMetadata carries optional response metadata. The dispatcher stamps
// every successful result with a timestamp and the name of the tool or
// prompt it answered, under the protocol's reserved "_meta" key.
type BaseMetadata struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
	BaseMetadata
}

// PingRequest is a no-op request used to test connectivity.
type PingRequest struct{}

// EmptyResult is returned for operations that do not return data.
type EmptyResult struct {
	BaseMetadata
}

// ListToolsRequest requests the set of available tools.
type ListToolsRequest struct{}

// ListToolsResult returns the available tools in registration order.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	BaseMetadata
}

// CallToolRequest is the server-received representation of a tool call.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult represents a tool invocation result.
type CallToolResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	IsError bool           `json:"isError,omitzero"`
	BaseMetadata
}

// ListPromptsRequest requests available prompts.
type ListPromptsRequest struct{}

// ListPromptsResult returns available prompts in registration order.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
	BaseMetadata
}

// GetPromptRequest requests a rendered prompt by name.
type GetPromptRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult returns a prompt's rendered messages.
type GetPromptResult struct {
	Description string          `json:"description,omitzero"`
	Messages    []PromptMessage `json:"messages"`
	BaseMetadata
}

// ListResourcesRequest requests the available resources.
type ListResourcesRequest struct{}

// ListResourcesResult returns the available resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	BaseMetadata
}

// ReadResourceRequest requests the contents of a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns resource contents.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
	BaseMetadata
}
