package mcpserver

import (
	"fmt"

	"github.com/obsidianmcp/obsidian-mcp-go/internal/jsonrpc"
)

// ProtocolError is an error that already carries a JSON-RPC error code. The
// dispatcher passes it through to the wire unchanged; any other handler error
// is wrapped into an internal error with its message preserved.
type ProtocolError struct {
	Code    jsonrpc.ErrorCode
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

// NewProtocolError builds a ProtocolError with the given code and message.
func NewProtocolError(code jsonrpc.ErrorCode, format string, a ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, a...)}
}

func methodNotFoundError(what, name string) *ProtocolError {
	return NewProtocolError(jsonrpc.ErrorCodeMethodNotFound, "%s not found: %s", what, name)
}

func invalidParamsError(format string, a ...any) *ProtocolError {
	return NewProtocolError(jsonrpc.ErrorCodeInvalidParams, format, a...)
}
