package mcpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"
)

// FlattenResult renders a tool result as plain text. Text content blocks are
// concatenated with newlines; any other block kind is JSON-encoded so nothing
// the server returned is silently dropped. The second return reports whether
// the server flagged the result as an error.
func FlattenResult(result *mcp.CallToolResult) (string, bool) {
	if result == nil {
		return "", false
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
			continue
		}
		raw, err := json.Marshal(content)
		if err != nil {
			logger.KV(xlog.WARNING,
				"status", "content_dropped",
				"content_type", fmt.Sprintf("%T", content),
				"err", err.Error(),
			)
			continue
		}
		parts = append(parts, string(raw))
	}
	return strings.Join(parts, "\n"), result.IsError
}
