package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"
)

// mangledNameRE parses the flat tool names advertised to the model.
var mangledNameRE = regexp.MustCompile(`^server_(\d+)_(.+)$`)

// MangleToolName builds the flat catalog name for a provider tool.
// Ordinals are the session's position in the registry.
func MangleToolName(ordinal int, name string) string {
	return fmt.Sprintf("server_%d_%s", ordinal, name)
}

// ResolveToolName splits a mangled catalog name back into the provider
// ordinal and the provider-local tool name. Names that do not match the
// catalog shape, or whose ordinal is outside [0, sessionCount), return
// ErrInvalidIdentifier.
func ResolveToolName(mangled string, sessionCount int) (int, string, error) {
	m := mangledNameRE.FindStringSubmatch(mangled)
	if m == nil {
		return 0, "", errors.WithMessagef(ErrInvalidIdentifier, "unparseable tool name %q", mangled)
	}
	ordinal, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", errors.WithMessagef(ErrInvalidIdentifier, "unparseable ordinal in %q", mangled)
	}
	if ordinal < 0 || ordinal >= sessionCount {
		return 0, "", errors.WithMessagef(ErrInvalidIdentifier, "ordinal %d out of range in %q", ordinal, mangled)
	}
	return ordinal, m[2], nil
}

// BuildCatalog flattens the tools of every connected session into a single
// list suitable for the model, with provider-qualified names. Sessions that
// fail to list tools are skipped; the bridge is best-effort per provider.
func (r *Registry) BuildCatalog(ctx context.Context) []llms.Tool {
	var catalog []llms.Tool
	for idx, sess := range r.sessions {
		tools, err := sess.Session.ListTools(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "list_tools_failed",
				"provider", sess.Name,
				"err", err.Error(),
			)
			continue
		}
		for _, tool := range tools {
			catalog = append(catalog, toolFromMCP(idx, tool))
		}
	}
	return catalog
}

func toolFromMCP(ordinal int, tool mcp.Tool) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        MangleToolName(ordinal, tool.Name),
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		},
	}
}
