// Package mcpclient provides the client-side session layer for remote MCP
// servers: per-provider connection config, the SSE transport session, and
// helpers to normalize tool results into text.
package mcpclient
