package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/obsidianmcp/obsidian-mcp-go/internal/jsonrpc"
	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
)

type pingHarness struct {
	out bytes.Buffer
	h   *Handler
}

func newHarness(t *testing.T, input string) *pingHarness {
	t.Helper()
	reg := mcpserver.NewToolRegistry()
	tool := mcpserver.NewTool("shout", "Uppercase the input",
		func(ctx context.Context, args struct {
			Text string `json:"text"`
		}) (*mcp.CallToolResult, error) {
			return mcpserver.TextResult(strings.ToUpper(args.Text)), nil
		})
	if err := reg.Register(tool); err != nil {
		t.Fatal(err)
	}
	srv := mcpserver.NewServer(nil, mcpserver.WithTools(reg))

	ph := &pingHarness{}
	ph.h = NewHandler(srv, WithIO(strings.NewReader(input), &ph.out))
	return ph
}

func (ph *pingHarness) responses(t *testing.T) []*jsonrpc.Response {
	t.Helper()
	var out []*jsonrpc.Response
	for _, line := range strings.Split(strings.TrimSpace(ph.out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp jsonrpc.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("output line %q is not a response: %v", line, err)
		}
		out = append(out, &resp)
	}
	return out
}

func TestServeAnswersInOrder(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}
{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"shout","arguments":{"text":"quiet"}}}
`
	ph := newHarness(t, input)
	if err := ph.h.Serve(context.Background()); err != nil {
		t.Fatalf("Serve returned %v", err)
	}

	resps := ph.responses(t)
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	if resps[0].ID.String() != "1" || resps[1].ID.String() != "2" {
		t.Fatalf("response order = [%s %s], want [1 2]", resps[0].ID, resps[1].ID)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resps[1].Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.Content[0].Text != "QUIET" {
		t.Fatalf("tool output = %q, want QUIET", result.Content[0].Text)
	}
}

func TestServeSkipsNotificationsAndBlankLines(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"notifications/initialized"}

{"jsonrpc":"2.0","id":7,"method":"ping"}
`
	ph := newHarness(t, input)
	if err := ph.h.Serve(context.Background()); err != nil {
		t.Fatalf("Serve returned %v", err)
	}
	resps := ph.responses(t)
	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1", len(resps))
	}
	if resps[0].ID.String() != "7" {
		t.Fatalf("response id = %s, want 7", resps[0].ID)
	}
}

func TestServeReportsMalformedLine(t *testing.T) {
	ph := newHarness(t, "this is not json\n")
	if err := ph.h.Serve(context.Background()); err != nil {
		t.Fatalf("Serve returned %v", err)
	}
	resps := ph.responses(t)
	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1", len(resps))
	}
	if resps[0].Error == nil || resps[0].Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("error = %+v, want InvalidParams", resps[0].Error)
	}
}

func TestServeReturnsOnCancelWithoutInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	reg := mcpserver.NewToolRegistry()
	srv := mcpserver.NewServer(nil, mcpserver.WithTools(reg))
	var out bytes.Buffer
	h := NewHandler(srv, WithIO(pr, &out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation with a silent client")
	}
	if out.Len() != 0 {
		t.Fatalf("output written during cancellation: %q", out.String())
	}
}

func TestServeStopsOnEOF(t *testing.T) {
	ph := newHarness(t, "")
	if err := ph.h.Serve(context.Background()); err != nil {
		t.Fatalf("Serve on empty input returned %v", err)
	}
	if ph.out.Len() != 0 {
		t.Fatalf("output on empty input: %q", ph.out.String())
	}
}
