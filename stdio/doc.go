// Package stdio implements a single-connection transport over stdin/stdout.
// It is intended for embedding the server as a subprocess of an MCP client:
// the client writes newline-delimited JSON-RPC requests to the process's
// stdin and reads newline-delimited responses from its stdout.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : implicit; the process lifetime is the session
//	Framing          : one JSON-RPC message per line
//
// Requests are handled one at a time in arrival order. Diagnostics go to the
// logger (stderr by default), never to stdout, which carries only protocol
// frames.
package stdio
