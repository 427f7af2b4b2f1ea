package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/obsidianmcp/obsidian-mcp-go/guard"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
)

// Handler is a single-connection stdio transport. It reads newline-delimited
// JSON-RPC messages from its reader, dispatches them to the server, and
// writes responses back one per line. It is transport-only; all protocol
// semantics live in the server.
type Handler struct {
	srv *mcpserver.Server
	r   io.Reader
	w   io.Writer
	log *slog.Logger
}

// NewHandler constructs a stdio Handler bound to os.Stdin/os.Stdout and
// applies options.
func NewHandler(srv *mcpserver.Server, opts ...Option) *Handler {
	h := &Handler{
		srv: srv,
		r:   os.Stdin,
		w:   os.Stdout,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the read loop until EOF on the reader or context cancellation.
// Each line is handled to completion before the next is read, so responses
// are written in request order. Notifications produce no output. A scanner
// overflow (line longer than the admission limit allows) is reported as an
// oversize-payload error response and terminates the connection, since the
// framing can no longer be trusted.
//
// The reader runs on its own goroutine so cancellation is observed even while
// no client input arrives; the idle watchdog must be able to stop the
// transport without waiting for the next line.
func (h *Handler) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(h.r)
	// Headroom above the admission limit so the size guard, not the scanner,
	// decides the error shape for messages just over the line.
	scanner.Buffer(make([]byte, 64*1024), guard.MaxMessageBytes+64*1024)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			// The scanner reuses its buffer across Scan calls.
			buf := make([]byte, len(line))
			copy(buf, line)
			select {
			case lines <- buf:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			break
		}
		resp := h.srv.HandleMessage(ctx, line)
		if resp == nil {
			continue
		}
		if err := h.write(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := <-scanErr; err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			h.log.ErrorContext(ctx, "stdio.line.overflow", slog.Int("limit_bytes", guard.MaxMessageBytes))
			return fmt.Errorf("message exceeds %d bytes: %w", guard.MaxMessageBytes, err)
		}
		return fmt.Errorf("reading stdin: %w", err)
	}
	h.log.DebugContext(ctx, "stdio.eof")
	return nil
}

func (h *Handler) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = h.w.Write(b)
	return err
}
