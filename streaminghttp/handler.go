package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/obsidianmcp/obsidian-mcp-go/guard"
	"github.com/obsidianmcp/obsidian-mcp-go/internal/jsonrpc"
	"github.com/obsidianmcp/obsidian-mcp-go/internal/logctx"
	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	acceptableMediaTypes = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"

	legacyActionsSegment = "list_actions"

	// DefaultSessionIdleTimeout bounds how long an HTTP session survives
	// without traffic before the janitor reclaims it.
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// happen before a JSON-RPC exchange is possible. This is transport-level, not
// JSON-RPC framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the slog logger used by the handler. Records pass through
// the logctx handler so per-request attributes survive.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = slog.New(logctx.Handler{Handler: l.Handler()})
		}
	}
}

// WithAllowedOrigins sets the Origin allow-list consulted when DNS-rebinding
// protection is enabled. Matching is case-insensitive and exact.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.allowedOrigins = lowerAll(origins) }
}

// WithAllowedHosts sets the Host allow-list consulted when DNS-rebinding
// protection is enabled.
func WithAllowedHosts(hosts []string) Option {
	return func(h *Handler) { h.allowedHosts = lowerAll(hosts) }
}

// WithDNSRebindingProtection toggles Origin/Host checking. Off by default so
// plain localhost setups work without configuration.
func WithDNSRebindingProtection(enabled bool) Option {
	return func(h *Handler) { h.rebindingProtection = enabled }
}

// WithSessionIdleTimeout overrides how long an idle session is retained.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.idleTimeout = d
		}
	}
}

// withTimeSource overrides the clock, for deterministic janitor tests.
func withTimeSource(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// session is the per-client affinity state. All protocol state lives in the
// shared server; the session only tracks identity and liveness.
type session struct {
	id        string
	createdAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *session) touch(t time.Time) {
	s.mu.Lock()
	s.lastActivity = t
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Handler is the streaming HTTP transport. One Handler serves many concurrent
// sessions over a single dispatcher; session affinity is carried by the
// Mcp-Session-Id header rather than by connection identity.
type Handler struct {
	srv  *mcpserver.Server
	path string
	log  *slog.Logger

	sessions sync.Map // session id -> *session

	allowedOrigins      []string
	allowedHosts        []string
	rebindingProtection bool

	idleTimeout time.Duration
	now         func() time.Time
}

// New constructs a Handler serving the given endpoint path ("/mcp" style).
func New(srv *mcpserver.Server, path string, opts ...Option) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("endpoint path must be non-empty and start with /, got %q", path)
	}
	h := &Handler{
		srv:         srv,
		path:        path,
		log:         slog.New(logctx.Handler{Handler: slog.Default().Handler()}),
		idleTimeout: DefaultSessionIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run sweeps idle sessions until the context is canceled. Callers that only
// need short-lived handlers (tests) can skip it; sessions then live until
// deleted or process exit.
func (h *Handler) Run(ctx context.Context) error {
	interval := h.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.sweepIdle(ctx)
		}
	}
}

func (h *Handler) sweepIdle(ctx context.Context) {
	cutoff := h.now().Add(-h.idleTimeout)
	h.sessions.Range(func(key, value any) bool {
		sess := value.(*session)
		if sess.idleSince().Before(cutoff) {
			h.sessions.Delete(key)
			h.log.InfoContext(ctx, "session.expire", slog.String("session_id", sess.id))
		}
		return true
	})
}

// SessionCount reports the number of live sessions.
func (h *Handler) SessionCount() int {
	n := 0
	h.sessions.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	if !h.checkRequestOrigin(ctx, w, r) {
		return
	}

	if h.isLegacyActionsPath(r.URL.Path) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		h.handleListActions(w, r)
		return
	}

	if !h.matchPath(r.URL.Path) {
		h.log.InfoContext(ctx, "http.path.miss")
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case http.MethodOptions:
		h.handleOptions(w, r)
	default:
		http.NotFound(w, r)
	}
}

// matchPath reports whether p names the endpoint. Beyond the exact path, it
// tolerates the endpoint's leading segment repeated at the tail ("/mcp/mcp",
// "/mcp/mcp/mcp"), a shape produced by some reverse-proxy rewrites.
func (h *Handler) matchPath(p string) bool {
	p = strings.TrimSuffix(p, "/")
	if p == h.path {
		return true
	}
	if !strings.HasPrefix(p, h.path+"/") {
		return false
	}
	seg := "/" + leadingSegment(h.path)
	rest := p[len(h.path):]
	for rest != "" {
		if !strings.HasPrefix(rest, seg) {
			return false
		}
		rest = rest[len(seg):]
	}
	return true
}

func (h *Handler) isLegacyActionsPath(p string) bool {
	return strings.TrimSuffix(p, "/") == h.path+"/"+legacyActionsSegment
}

func leadingSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// checkRequestOrigin enforces the Origin/Host allow-lists when DNS-rebinding
// protection is on. A browser on a hostile page can make the victim's browser
// POST to localhost; the Origin header is the only signal that survives.
func (h *Handler) checkRequestOrigin(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if !h.rebindingProtection {
		return true
	}
	if origin := r.Header.Get("Origin"); origin != "" && len(h.allowedOrigins) > 0 {
		if !containsFold(h.allowedOrigins, origin) {
			h.log.WarnContext(ctx, "security.origin.reject", slog.String("origin", origin))
			writeJSONError(w, http.StatusForbidden, "origin not allowed")
			return false
		}
	}
	if len(h.allowedHosts) > 0 && !containsFold(h.allowedHosts, r.Host) {
		h.log.WarnContext(ctx, "security.host.reject", slog.String("host", r.Host))
		writeJSONError(w, http.StatusForbidden, "host not allowed")
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// handlePost dispatches one JSON-RPC message. A request without a session
// header must be an initialize request and mints a new session; anything else
// requires an existing session.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported")
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	// Headroom above the admission limit so the size guard, not the HTTP
	// layer, decides the error shape for messages just over the line.
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, guard.MaxMessageBytes+64*1024))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.WarnContext(ctx, "http.body.overflow")
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.log.WarnContext(ctx, "http.body.read.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		return
	}

	// Envelope inspection only; HandleMessage re-decodes and owns the error
	// shape for malformed frames.
	req, decodeErr := jsonrpc.DecodeRequest(raw)

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		if decodeErr != nil || req.Method != string(mcp.InitializeMethod) {
			h.log.InfoContext(ctx, "session.initialize.expected")
			writeJSONError(w, http.StatusNotFound, "expected initialize request")
			return
		}
		sess := &session{id: uuid.NewString(), createdAt: h.now()}
		sess.touch(h.now())

		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.id})
		resp := h.srv.HandleMessage(ctx, raw)
		if resp == nil || resp.Error != nil {
			// The handshake did not complete (admission reject, or initialize
			// sent as a notification); no session is minted.
			h.log.WarnContext(ctx, "session.initialize.fail")
			h.writeResponse(ctx, w, r, resp)
			return
		}
		h.sessions.Store(sess.id, sess)

		w.Header().Set(mcpSessionIDHeader, sess.id)
		w.Header().Set(mcpProtocolVersionHeader, mcp.LatestProtocolVersion)
		h.writeResponse(ctx, w, r, resp)
		h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	sess, ok := h.loadSession(sessID)
	if !ok {
		h.log.InfoContext(ctx, "session.load.miss")
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	sess.touch(h.now())
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.id})

	if decodeErr == nil && req.Method == string(mcp.InitializeMethod) {
		h.log.WarnContext(ctx, "session.initialize.redundant")
		writeJSONError(w, http.StatusConflict, "session already initialized")
		return
	}

	resp := h.srv.HandleMessage(ctx, raw)
	if resp == nil {
		// Notification: nothing to send back.
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}
	h.writeResponse(ctx, w, r, resp)
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) loadSession(id string) (*session, bool) {
	v, ok := h.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

// writeResponse sends resp as plain JSON or as a single SSE frame, per the
// request's Accept header. No Accept header means JSON.
func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *jsonrpc.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	media := jsonMediaType
	if r.Header.Get("Accept") != "" {
		accepted, _, err := contenttype.GetAcceptableMediaType(r, acceptableMediaTypes)
		if err != nil {
			h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			writeJSONError(w, http.StatusNotAcceptable, "accept must include application/json or text/event-stream")
			return
		}
		media = accepted
	}

	b, err := json.Marshal(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	if media.Matches(eventStreamMediaType) {
		w.Header().Set("Content-Type", eventStreamMediaType.String())
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := writeSSEEvent(w, b); err != nil {
			h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(b, '\n')); err != nil {
		h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
	}
}

// handleDelete terminates the session named by the Mcp-Session-Id header.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "session.id.missing")
		writeJSONError(w, http.StatusBadRequest, "missing "+mcpSessionIDHeader+" header")
		return
	}
	if _, ok := h.loadSession(sessID); !ok {
		h.log.InfoContext(ctx, "session.delete.miss")
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	h.sessions.Delete(sessID)
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "session.delete.ok", slog.String("session_id", sessID))
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+mcpSessionIDHeader)
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// legacyAction is the pre-MCP discovery shape some older clients still fetch.
// Parameters carries the tool's input schema unchanged.
type legacyAction struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Parameters  mcp.ToolInputSchema `json:"parameters"`
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tools := h.srv.Tools().List()
	actions := make([]legacyAction, 0, len(tools))
	for _, t := range tools {
		actions = append(actions, legacyAction{
			ID:          t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	if err := json.NewEncoder(w).Encode(map[string]any{"actions": actions}); err != nil {
		h.log.ErrorContext(ctx, "legacy.actions.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "legacy.actions.ok", slog.Int("count", len(actions)))
}

// writeSSEEvent writes one response as a single SSE message frame and flushes.
func writeSSEEvent(w http.ResponseWriter, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
