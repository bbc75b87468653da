package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// toolGuidance is appended to the system prompt whenever tools are offered.
// Models left to themselves tend to list their tools instead of calling them.
func toolGuidance(tools []mcptypes.Tool) string {
	if len(tools) == 0 {
		return ""
	}

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(names, ", "),
		"",
		"When a request needs a tool, call it directly.",
		"If a required parameter is missing, ask for that parameter only.",
		"Do not list the available tools or describe what you are about to do.",
	}, "\n")
}
