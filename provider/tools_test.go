package provider

import (
	"slices"
	"strings"
	"testing"

	"chatdesk/provider/testutil"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func TestSchemaParameters(t *testing.T) {
	tests := []struct {
		name         string
		schema       mcptypes.ToolInputSchema
		wantType     string
		wantRequired bool
	}{
		{
			name:     "empty schema defaults to object",
			schema:   mcptypes.ToolInputSchema{},
			wantType: "object",
		},
		{
			name: "required kept",
			schema: mcptypes.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"q": map[string]any{"type": "string"}},
				Required:   []string{"q"},
			},
			wantType:     "object",
			wantRequired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := schemaParameters(tt.schema)

			if params["type"] != tt.wantType {
				t.Errorf("type: got %v, want %q", params["type"], tt.wantType)
			}
			if _, ok := params["properties"].(map[string]any); !ok {
				t.Errorf("properties should always be a map, got %T", params["properties"])
			}
			if _, ok := params["required"]; ok != tt.wantRequired {
				t.Errorf("required present: got %v, want %v", ok, tt.wantRequired)
			}
		})
	}
}

func TestToWireTools(t *testing.T) {
	if toWireTools(nil) != nil {
		t.Error("no tools should convert to nil")
	}

	tools := toWireTools(testutil.Tools())
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Type != "function" || tools[0].Function.Name != "get_weather" {
		t.Errorf("unexpected tool: %+v", tools[0])
	}
	if tools[0].Function.Description != "Get the current weather for a location" {
		t.Errorf("description: got %q", tools[0].Function.Description)
	}
	props := tools[0].Function.Parameters["properties"].(map[string]any)
	if _, ok := props["location"]; !ok {
		t.Error("location property missing")
	}
}

func TestToOpenAITools(t *testing.T) {
	if toOpenAITools(nil) != nil {
		t.Error("no tools should convert to nil")
	}
	if got := len(toOpenAITools(testutil.Tools())); got != 2 {
		t.Errorf("expected 2 tools, got %d", got)
	}
}

func TestToAnthropicTools(t *testing.T) {
	if toAnthropicTools(nil) != nil {
		t.Error("no tools should convert to nil")
	}

	tools := toAnthropicTools(testutil.Tools())
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[1].OfTool == nil || tools[1].OfTool.Name != "calculate" {
		t.Errorf("unexpected tool: %+v", tools[1])
	}
	if !slices.Equal(tools[1].OfTool.InputSchema.Required, []string{"expression"}) {
		t.Errorf("required: got %v", tools[1].OfTool.InputSchema.Required)
	}
}

func TestToOllamaTools(t *testing.T) {
	tools := toOllamaTools([]mcptypes.Tool{
		{
			Name:        "calculate",
			Description: "Perform calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Properties: map[string]any{
					"operation": map[string]any{
						"type":        "string",
						"description": "The operation to perform",
						"enum":        []any{"add", "subtract"},
					},
					"value": map[string]any{
						"type": []any{"number", "null"},
					},
				},
				Required: []string{"operation"},
			},
		},
	})

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].Function
	if tools[0].Type != "function" || fn.Name != "calculate" {
		t.Errorf("unexpected tool: %+v", tools[0])
	}
	if fn.Parameters.Type != "object" {
		t.Errorf("parameters type should default to object, got %q", fn.Parameters.Type)
	}

	op := fn.Parameters.Properties["operation"]
	if len(op.Type) != 1 || op.Type[0] != "string" {
		t.Errorf("operation type: got %v", op.Type)
	}
	if op.Description != "The operation to perform" || len(op.Enum) != 2 {
		t.Errorf("operation property: %+v", op)
	}

	value := fn.Parameters.Properties["value"]
	if len(value.Type) != 2 || value.Type[1] != "null" {
		t.Errorf("union type: got %v", value.Type)
	}
}

func TestOllamaPropertyNonMap(t *testing.T) {
	type prop struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}

	got := ollamaProperty(prop{Type: "integer", Description: "count"})
	if len(got.Type) != 1 || got.Type[0] != "integer" || got.Description != "count" {
		t.Errorf("struct property not converted: %+v", got)
	}
}

func TestToolGuidance(t *testing.T) {
	if toolGuidance(nil) != "" {
		t.Error("no tools should give no guidance")
	}
	if g := toolGuidance(testutil.Tools()); !strings.HasPrefix(g, "TOOLS: get_weather, calculate\n") {
		t.Errorf("unexpected guidance: %q", g)
	}
}
