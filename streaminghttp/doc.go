// Package streaminghttp implements the multi-session HTTP transport. Clients
// POST JSON-RPC messages to a single configured endpoint; the first exchange
// must be an initialize request, which mints a session identified by the
// Mcp-Session-Id response header. Subsequent requests carry that header and
// are answered either as plain JSON or as a Server-Sent Events frame,
// negotiated from the request's Accept header.
//
// Endpoint behavior
//
//	POST    <path>               dispatch one JSON-RPC message
//	DELETE  <path>               terminate the session named by Mcp-Session-Id
//	OPTIONS <path>               advertise allowed methods
//	POST    <path>/list_actions  legacy tool discovery (actions/id/parameters)
//	anything else                404
//
// The route matcher also accepts requests whose path repeats the endpoint's
// leading segment (for "/mcp": "/mcp/mcp", "/mcp/mcp/mcp", ...), which some
// proxy rewrites produce.
//
// When DNS-rebinding protection is enabled, requests whose Origin or Host
// header falls outside the configured allow-lists are refused with 403 before
// any message is read.
package streaminghttp
