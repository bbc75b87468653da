package provider

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// Tool definitions arrive in MCP form (name, description, JSON-Schema input)
// and are translated into each vendor's tool shape here.

// schemaParameters flattens an MCP input schema into a plain JSON-Schema map,
// the shape OpenAI-compatible vendors expect under function.parameters.
func schemaParameters(schema mcptypes.ToolInputSchema) map[string]any {
	typ := schema.Type
	if typ == "" {
		typ = "object"
	}
	props := schema.Properties
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{
		"type":       typ,
		"properties": props,
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	if schema.Defs != nil {
		params["$defs"] = schema.Defs
	}
	return params
}

// toOpenAITools converts tools for the OpenAI SDK.
func toOpenAITools(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		fn := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: openai.FunctionParameters(schemaParameters(tool.InputSchema)),
		}
		if tool.Description != "" {
			fn.Description = openai.String(tool.Description)
		}
		result[i] = openai.ChatCompletionFunctionTool(fn)
	}
	return result
}

// wireTool is the JSON tool shape of the OpenAI chat-completions wire format.
type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// toWireTools converts tools for the raw SSE adapter.
func toWireTools(tools []mcptypes.Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]wireTool, len(tools))
	for i, tool := range tools {
		result[i] = wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaParameters(tool.InputSchema),
			},
		}
	}
	return result
}

// toAnthropicTools converts tools to Anthropic's input_schema form.
func toAnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		// Type defaults to "object" when omitted.
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}

// toOllamaTools converts tools to Ollama's typed function parameters.
func toOllamaTools(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       tool.InputSchema.Type,
			Required:   tool.InputSchema.Required,
			Properties: make(map[string]api.ToolProperty, len(tool.InputSchema.Properties)),
		}
		if params.Type == "" {
			params.Type = "object"
		}
		if tool.InputSchema.Defs != nil {
			params.Defs = tool.InputSchema.Defs
		}
		for name, value := range tool.InputSchema.Properties {
			params.Properties[name] = ollamaProperty(value)
		}

		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

// ollamaProperty converts one JSON-Schema property. Values that are not
// already maps are round-tripped through JSON first.
func ollamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}

	m, ok := value.(map[string]any)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			return prop
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return prop
		}
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}

	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		prop.AnyOf = make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			prop.AnyOf = append(prop.AnyOf, ollamaProperty(item))
		}
	}

	return prop
}
