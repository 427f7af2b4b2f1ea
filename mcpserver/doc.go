// Package mcpserver is the transport-agnostic protocol server runtime: the
// capability registries (tools, prompts, resources) and the request
// dispatcher that admits, routes, validates, and executes incoming JSON-RPC
// messages.
//
// Both transports (stdio and streaminghttp) hand raw message bytes to
// Server.HandleMessage and relay whatever envelope it returns; no protocol
// semantics live in the transports.
//
// Registries are populated once at startup and are read-only afterwards, so
// concurrent sessions dispatch against them without locking. The only mutable
// state touched per call is the activity clock and the rate-limiter windows.
package mcpserver
