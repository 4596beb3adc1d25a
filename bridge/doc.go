// Package bridge connects a single user query to a set of MCP tool
// providers through an LLM: it opens provider sessions, mangles their
// tools into one flat catalog, and drives the model/tool loop until the
// model produces a final answer.
package bridge
