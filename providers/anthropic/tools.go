package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// convertToolsToAnthropicTools converts catalog definitions to Anthropic custom tools.
func convertToolsToAnthropicTools(tools []analyst.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i, tool := range tools {
		converted, err := convertCustomTool(tool)
		if err != nil {
			return nil, fmt.Errorf("tool %d (%s): %w", i, tool.Name, err)
		}
		result = append(result, converted)
	}
	return result, nil
}

// convertCustomTool converts one definition to Anthropic's custom tool format.
//
// The catalog holds a full JSON schema; Anthropic wants the properties and
// required list as fields and everything else in ExtraFields.
func convertCustomTool(tool analyst.ToolDefinition) (anthropic.ToolUnionParam, error) {
	if err := tool.Validate(); err != nil {
		return anthropic.ToolUnionParam{}, err
	}

	schema := anthropic.ToolInputSchemaParam{
		Properties:  tool.InputSchema["properties"],
		ExtraFields: make(map[string]any),
	}

	switch required := tool.InputSchema["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		schema.Required = make([]string, 0, len(required))
		for _, v := range required {
			str, ok := v.(string)
			if !ok {
				return anthropic.ToolUnionParam{}, fmt.Errorf("required entry %v is not a string", v)
			}
			schema.Required = append(schema.Required, str)
		}
	}

	for key, value := range tool.InputSchema {
		if key != "type" && key != "properties" && key != "required" {
			schema.ExtraFields[key] = value
		}
	}

	toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	toolParam.OfTool.Description = anthropic.String(tool.Description)
	return toolParam, nil
}
