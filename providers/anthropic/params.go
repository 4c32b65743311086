package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/sjson"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// buildMessageParams constructs Anthropic API parameters from a GenerateRequest.
func buildMessageParams(req *analyst.GenerateRequest) (anthropic.MessageNewParams, error) {
	if err := req.Params.Validate(); err != nil {
		return anthropic.MessageNewParams{}, err
	}

	messages, err := convertToAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	tools, err := convertToolsToAnthropicTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert tools: %w", err)
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Params.Model),
		Messages:  messages,
		MaxTokens: int64(req.Params.MaxTokens),
		Tools:     tools,
	}

	// System prompt
	if req.Params.System != nil && *req.Params.System != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: *req.Params.System,
			},
		}
	}

	return apiParams, nil
}

// buildRequestBody serializes the params and forces "stream": true, which
// MessageNewParams does not carry.
func buildRequestBody(req *analyst.GenerateRequest) ([]byte, error) {
	apiParams, err := buildMessageParams(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(apiParams)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("failed to enable streaming: %w", err)
	}
	return body, nil
}
