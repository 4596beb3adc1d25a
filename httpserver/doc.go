// Package httpserver exposes the bridge over HTTP: a single POST endpoint
// accepts a query and an MCP provider catalog and returns the model's final
// answer.
package httpserver
