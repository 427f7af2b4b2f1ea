// Package mcp defines the wire-level types of the Model Context Protocol
// surface this server speaks: the initialize handshake, tool listing and
// invocation, prompt listing and retrieval, and vault-backed resource listing
// and reading.
//
// The package is intentionally dependency-free. Transports and the dispatcher
// marshal these types into JSON-RPC envelopes (see internal/jsonrpc); nothing
// here performs I/O.
package mcp
