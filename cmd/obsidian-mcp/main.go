// Command obsidian-mcp serves Obsidian vaults over the Model Context
// Protocol, on stdio or streaming HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"

	"github.com/obsidianmcp/obsidian-mcp-go/guard"
	"github.com/obsidianmcp/obsidian-mcp-go/internal/jsonrpc"
	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
	"github.com/obsidianmcp/obsidian-mcp-go/mcpserver"
	"github.com/obsidianmcp/obsidian-mcp-go/notes"
	"github.com/obsidianmcp/obsidian-mcp-go/stdio"
	"github.com/obsidianmcp/obsidian-mcp-go/streaminghttp"
	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

var version = "0.1.0"

const serverInstructions = "Obsidian vault server. Use list-available-vaults to discover vaults, " +
	"then the note and tag tools to read and modify them."

// config is the flag/env surface. Environment variables provide defaults;
// flags override.
type config struct {
	Transport              string   `env:"OBSIDIAN_MCP_TRANSPORT,default=stdio"`
	Host                   string   `env:"OBSIDIAN_MCP_HOST,default=127.0.0.1"`
	Port                   int      `env:"OBSIDIAN_MCP_PORT,default=3000"`
	Path                   string   `env:"OBSIDIAN_MCP_PATH,default=/mcp"`
	AllowedOrigins         []string `env:"OBSIDIAN_MCP_ALLOWED_ORIGINS"`
	AllowedHosts           []string `env:"OBSIDIAN_MCP_ALLOWED_HOSTS"`
	DNSRebindingProtection bool     `env:"OBSIDIAN_MCP_DNS_REBINDING_PROTECTION,default=false"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportFatal(err)
		os.Exit(1)
	}
}

// reportFatal emits a single JSON-RPC error envelope on stdout so a client
// that already piped our stdout sees a well-formed failure, and diagnostics
// on stderr for the operator.
func reportFatal(err error) {
	resp := jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, err.Error())
	if b, mErr := json.Marshal(resp); mErr == nil {
		fmt.Fprintln(os.Stdout, string(b))
	}
	fmt.Fprintf(os.Stderr, "obsidian-mcp: fatal: %v\n", err)
}

func newRootCmd() *cobra.Command {
	var cfg config
	// Defaults come from the struct tags; unset variables are not an error.
	_ = envdecode.Decode(&cfg)

	cmd := &cobra.Command{
		Use:           "obsidian-mcp [flags] VAULT_PATH...",
		Short:         "Serve Obsidian vaults over the Model Context Protocol",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport to serve on: stdio or http")
	f.StringVar(&cfg.Host, "host", cfg.Host, "bind host for the http transport")
	f.IntVar(&cfg.Port, "port", cfg.Port, "bind port for the http transport")
	f.StringVar(&cfg.Path, "path", cfg.Path, "endpoint path for the http transport")
	f.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "Origin values accepted when DNS-rebinding protection is on")
	f.StringSliceVar(&cfg.AllowedHosts, "allowed-hosts", cfg.AllowedHosts, "Host values accepted when DNS-rebinding protection is on")
	f.BoolVar(&cfg.DNSRebindingProtection, "dns-rebinding-protection", cfg.DNSRebindingProtection, "refuse requests from unknown Origin/Host")

	return cmd
}

func run(ctx context.Context, cfg config, vaultPaths []string) error {
	logger := slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "obsidian-mcp",
	}))

	reg, err := vault.NewRegistry(vaultPaths, vault.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("validating vaults: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := vault.NewWatcher(reg, logger, nil)
	if err != nil {
		return fmt.Errorf("watching vaults: %w", err)
	}
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("vault watcher stopped", "err", err)
		}
	}()

	toolReg := mcpserver.NewToolRegistry()
	for _, t := range notes.Tools(reg) {
		if err := toolReg.Register(t); err != nil {
			return fmt.Errorf("registering tools: %w", err)
		}
	}
	promptReg := mcpserver.NewPromptRegistry()
	for _, p := range notes.Prompts(reg) {
		if err := promptReg.Register(p); err != nil {
			return fmt.Errorf("registering prompts: %w", err)
		}
	}

	opts := []mcpserver.ServerOption{
		mcpserver.WithServerInfo(mcp.ImplementationInfo{Name: "obsidian-mcp", Version: version}),
		mcpserver.WithInstructions(serverInstructions),
		mcpserver.WithTools(toolReg),
		mcpserver.WithPrompts(promptReg),
		mcpserver.WithResources(notes.NewVaultResources(reg)),
		mcpserver.WithLogger(logger),
	}

	switch cfg.Transport {
	case "stdio":
		return runStdio(ctx, stop, logger, reg, opts)
	case "http":
		return runHTTP(ctx, cfg, logger, reg, opts)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.Transport)
	}
}

func runStdio(ctx context.Context, stop context.CancelFunc, logger *slog.Logger, reg *vault.Registry, opts []mcpserver.ServerOption) error {
	// The monitor tears the process down when the client goes quiet for too
	// long without closing our stdin.
	monitor := guard.NewConnectionMonitor(func() {
		logger.Warn("connection idle; shutting down")
		stop()
	})
	opts = append(opts, mcpserver.WithConnectionMonitor(monitor))

	srv := mcpserver.NewServer(reg, opts...)
	h := stdio.NewHandler(srv, stdio.WithLogger(logger))

	monitor.Start()
	defer monitor.Stop()

	logger.Info("serving on stdio", "vaults", reg.Len())
	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, cfg config, logger *slog.Logger, reg *vault.Registry, opts []mcpserver.ServerOption) error {
	srv := mcpserver.NewServer(reg, opts...)

	h, err := streaminghttp.New(srv, cfg.Path,
		streaminghttp.WithLogger(logger),
		streaminghttp.WithAllowedOrigins(cfg.AllowedOrigins),
		streaminghttp.WithAllowedHosts(cfg.AllowedHosts),
		streaminghttp.WithDNSRebindingProtection(cfg.DNSRebindingProtection),
	)
	if err != nil {
		return fmt.Errorf("building http transport: %w", err)
	}
	go func() {
		if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("session janitor stopped", "err", err)
		}
	}()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving http", "addr", addr, "path", cfg.Path)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
