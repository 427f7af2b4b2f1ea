package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/obsidianmcp/obsidian-mcp-go/guard"
	"github.com/obsidianmcp/obsidian-mcp-go/internal/jsonrpc"
	"github.com/obsidianmcp/obsidian-mcp-go/internal/logctx"
	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// Server is the protocol server runtime shared by all transports. It owns the
// read-only capability registries and the mutable admission state (activity
// monitor, rate windows), and dispatches one message at a time per call.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string

	vaults    *vault.Registry
	tools     *ToolRegistry
	prompts   *PromptRegistry
	resources ResourceProvider

	limiter *guard.MethodLimiter
	monitor *guard.ConnectionMonitor
	now     func() time.Time
	log     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the implementation info returned on initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets the instructions string returned on initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithTools wires the tool registry.
func WithTools(r *ToolRegistry) ServerOption {
	return func(s *Server) { s.tools = r }
}

// WithPrompts wires the prompt registry.
func WithPrompts(r *PromptRegistry) ServerOption {
	return func(s *Server) { s.prompts = r }
}

// WithResources wires the resource provider.
func WithResources(p ResourceProvider) ServerOption {
	return func(s *Server) { s.resources = p }
}

// WithRateLimiter overrides the per-method rate limiter.
func WithRateLimiter(l *guard.MethodLimiter) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithConnectionMonitor wires the idle watchdog. The server updates it on
// every admitted request; lifecycle (Start/Stop) belongs to the caller.
func WithConnectionMonitor(m *guard.ConnectionMonitor) ServerOption {
	return func(s *Server) { s.monitor = m }
}

// WithLogger sets the server logger. Records pass through the logctx handler
// so transport-scoped attributes survive.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = slog.New(logctx.Handler{Handler: l.Handler()})
		}
	}
}

// WithTimeSource overrides the clock used for response metadata timestamps.
func WithTimeSource(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer builds a Server over the given vault registry.
func NewServer(vaults *vault.Registry, opts ...ServerOption) *Server {
	s := &Server{
		vaults:  vaults,
		tools:   NewToolRegistry(),
		prompts: NewPromptRegistry(),
		limiter: guard.NewMethodLimiter(0),
		now:     time.Now,
		log:     slog.New(logctx.Handler{Handler: slog.Default().Handler()}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vaults returns the registry the server was built over.
func (s *Server) Vaults() *vault.Registry { return s.vaults }

// Tools returns the tool registry (for transport-level discovery endpoints).
func (s *Server) Tools() *ToolRegistry { return s.tools }

// HandleMessage runs the full dispatch state machine for one raw message:
// envelope decode, admission (size, activity, rate — in that order), route,
// resolve, validate, execute, envelope. It returns nil for notifications.
// Errors are always returned as response envelopes, never as Go errors; the
// transport's only job is to relay the bytes.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) *jsonrpc.Response {
	req, err := jsonrpc.DecodeRequest(raw)
	if err != nil {
		s.log.WarnContext(ctx, "envelope.decode.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidParams, err.Error())
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	if err := guard.CheckMessageSize(raw); err != nil {
		s.log.WarnContext(ctx, "admission.size.reject", slog.Int("bytes", len(raw)))
		return s.errorResponse(req, jsonrpc.ErrorCodeInvalidRequest, err.Error())
	}
	if s.monitor != nil {
		s.monitor.UpdateActivity()
	}
	if !s.limiter.Allow(req.Method) {
		s.log.WarnContext(ctx, "admission.rate.reject")
		err := fmt.Errorf("%w: %s", guard.ErrRateLimitExceeded, req.Method)
		return s.errorResponse(req, jsonrpc.ErrorCodeInvalidRequest, err.Error())
	}

	if req.IsNotification() {
		s.handleNotification(ctx, req)
		return nil
	}

	result, herr := s.route(ctx, req)
	if herr != nil {
		perr, ok := herr.(*ProtocolError)
		if !ok {
			perr = NewProtocolError(jsonrpc.ErrorCodeInternalError, "%s", herr.Error())
		}
		s.log.WarnContext(ctx, "rpc.fail", slog.Int("code", int(perr.Code)), slog.String("err", perr.Message))
		return jsonrpc.NewErrorResponse(req.ID, perr.Code, perr.Message)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		s.log.ErrorContext(ctx, "rpc.result.marshal.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "failed to encode result")
	}
	s.log.InfoContext(ctx, "rpc.ok")
	return resp
}

func (s *Server) errorResponse(req *jsonrpc.Request, code jsonrpc.ErrorCode, msg string) *jsonrpc.Response {
	if req.IsNotification() {
		return nil
	}
	return jsonrpc.NewErrorResponse(req.ID, code, msg)
}

func (s *Server) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod, mcp.CancelledNotificationMethod:
		s.log.InfoContext(ctx, "notification.ok")
	default:
		s.log.InfoContext(ctx, "notification.unknown")
	}
}

// route dispatches a request by method. Unknown methods fail with
// MethodNotFound.
func (s *Server) route(ctx context.Context, req *jsonrpc.Request) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return s.handleInitialize(ctx, req)
	case mcp.PingMethod:
		return &mcp.EmptyResult{}, nil
	case mcp.ToolsListMethod:
		return &mcp.ListToolsResult{Tools: s.tools.List()}, nil
	case mcp.ToolsCallMethod:
		return s.handleCallTool(ctx, req)
	case mcp.PromptsListMethod:
		return &mcp.ListPromptsResult{Prompts: s.prompts.List()}, nil
	case mcp.PromptsGetMethod:
		return s.handleGetPrompt(ctx, req)
	case mcp.ResourcesListMethod:
		return s.handleListResources(ctx)
	case mcp.ResourcesReadMethod:
		return s.handleReadResource(ctx, req)
	default:
		return nil, methodNotFoundError("method", req.Method)
	}
}

// Initialize builds the handshake result. Exposed for the HTTP transport,
// which must create the session before it can answer the initialize request.
func (s *Server) Initialize(ctx context.Context, initReq *mcp.InitializeRequest) *mcp.InitializeResult {
	caps := mcp.ServerCapabilities{
		Tools:   &struct {
			ListChanged bool `json:"listChanged"`
		}{},
		Prompts: &struct {
			ListChanged bool `json:"listChanged"`
		}{},
	}
	if s.resources != nil {
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}
	return &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
}

func (s *Server) handleInitialize(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			return nil, invalidParamsError("invalid initialize params: %v", err)
		}
	}
	s.log.InfoContext(ctx, "session.initialize", slog.String("client", initReq.ClientInfo.Name))
	return s.Initialize(ctx, &initReq), nil
}

func (s *Server) handleCallTool(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var call mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return nil, invalidParamsError("invalid tool call params: %v", err)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: call.Name})

	desc, handler, ok := s.tools.Get(call.Name)
	if !ok {
		return nil, methodNotFoundError("tool", call.Name)
	}

	if violations := validateArgs(desc.InputSchema, call.Arguments); len(violations) > 0 {
		return nil, invalidParamsError("%s", violationMessage(violations))
	}

	res, err := handler(ctx, call.Arguments)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}
	res.Meta = map[string]any{
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"toolName":  call.Name,
		"success":   !res.IsError,
	}
	return res, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var get mcp.GetPromptRequest
	if err := json.Unmarshal(req.Params, &get); err != nil {
		return nil, invalidParamsError("invalid prompt params: %v", err)
	}

	desc, handler, ok := s.prompts.Get(get.Name)
	if !ok {
		return nil, methodNotFoundError("prompt", get.Name)
	}

	var missing []string
	for _, arg := range desc.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := get.Arguments[arg.Name]; !ok {
			missing = append(missing, arg.Name+": required argument is missing")
		}
	}
	if len(missing) > 0 {
		return nil, invalidParamsError("%s", violationMessage(missing))
	}

	res, err := handler(ctx, get.Arguments)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &mcp.GetPromptResult{}
	}
	res.Meta = map[string]any{
		"timestamp":  s.now().UTC().Format(time.RFC3339),
		"promptName": get.Name,
	}
	return res, nil
}

func (s *Server) handleListResources(ctx context.Context) (any, error) {
	if s.resources == nil {
		return &mcp.ListResourcesResult{Resources: []mcp.Resource{}}, nil
	}
	resources, err := s.resources.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	return &mcp.ListResourcesResult{Resources: resources}, nil
}

func (s *Server) handleReadResource(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var read mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &read); err != nil {
		return nil, invalidParamsError("invalid resource params: %v", err)
	}
	if !strings.HasPrefix(read.URI, VaultURIScheme+"://") {
		return nil, invalidParamsError("unsupported URI scheme: %s (only %s:// is served)", read.URI, VaultURIScheme)
	}
	if s.resources == nil {
		return nil, methodNotFoundError("resource", read.URI)
	}
	contents, err := s.resources.ReadResource(ctx, read.URI)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{Contents: contents}, nil
}
