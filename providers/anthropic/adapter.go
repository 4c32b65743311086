package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// convertToAnthropicMessages converts conversation turns to Anthropic SDK format.
func convertToAnthropicMessages(messages []analyst.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for j, block := range msg.Blocks {
			if block == nil {
				continue
			}

			switch block.BlockType {
			case analyst.BlockTypeText:
				// The API rejects empty text blocks
				if block.Text == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))

			case analyst.BlockTypeToolUse:
				if block.ToolUse == nil {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing invocation", i, j)
				}
				if block.ToolUse.ID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing id", i, j)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ToolUse.ID, toolInput(block.ToolUse), block.ToolUse.Name))

			case analyst.BlockTypeToolResult:
				if block.ToolResult == nil {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing outcome", i, j)
				}
				if block.ToolResult.ToolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", i, j)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolResult.ToolUseID, block.ToolResult.Content, block.ToolResult.IsError))

			default:
				return nil, fmt.Errorf("message %d, block %d: unsupported block type '%s'", i, j, block.BlockType)
			}
		}

		var message anthropic.MessageParam
		switch msg.Role {
		case analyst.RoleUser:
			message = anthropic.NewUserMessage(blocks...)
		case analyst.RoleAssistant:
			message = anthropic.NewAssistantMessage(blocks...)
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}

		result = append(result, message)
	}

	return result, nil
}

// toolInput returns the input replayed for an invocation. An input that
// failed to parse is replayed as an empty object; its outcome already
// reports the failure.
func toolInput(t *analyst.ToolUse) map[string]any {
	if t.Input == nil {
		return map[string]any{}
	}
	return t.Input
}
