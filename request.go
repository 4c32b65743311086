package analyst

import "fmt"

// GenerateRequest contains everything sent to the endpoint for one turn.
type GenerateRequest struct {
	// Messages contains the full conversation history
	Messages []Message

	// Tools is the static tool catalog offered to the model
	Tools []ToolDefinition

	// Params carries model identity, output ceiling and system instructions
	Params RequestParams
}

// RequestParams configures one endpoint call.
// Streaming is not configurable: providers always request a streamed body.
type RequestParams struct {
	// Model is the model identifier (e.g., "claude-sonnet-4-5-20250929")
	Model string

	// MaxTokens is the output-size ceiling
	MaxTokens int

	// System is the optional system prompt
	System *string
}

// Validate checks that the params can be sent.
func (p RequestParams) Validate() error {
	if p.Model == "" {
		return &ValidationError{Field: "model", Value: p.Model, Reason: "model is required", Err: ErrInvalidRequest}
	}
	if p.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Value: p.MaxTokens, Reason: "must be positive", Err: ErrInvalidRequest}
	}
	return nil
}

// Message represents a single turn in the conversation.
type Message struct {
	// Role is either "user" or "assistant"
	Role string

	// Blocks is the list of content blocks for this message
	Blocks []*Block
}

// Conversation is the append-only history of one analysis.
// It lives for a single Run and is never persisted.
type Conversation struct {
	messages []Message
}

// NewConversation seeds a conversation with one user text turn.
func NewConversation(prompt string) *Conversation {
	c := &Conversation{}
	c.AppendUserText(prompt)
	return c
}

// AppendUserText appends a user turn containing a single text block.
func (c *Conversation) AppendUserText(text string) {
	c.messages = append(c.messages, Message{
		Role:   RoleUser,
		Blocks: []*Block{NewTextBlock(0, text)},
	})
}

// AppendAssistant appends the present blocks of an assistant message.
func (c *Conversation) AppendAssistant(msg *AssistantMessage) {
	c.messages = append(c.messages, Message{
		Role:   RoleAssistant,
		Blocks: msg.PresentBlocks(),
	})
}

// AppendToolResults appends one synthetic user turn carrying every result.
func (c *Conversation) AppendToolResults(results []ToolResult) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: tool results turn must carry at least one result", ErrInvalidRequest)
	}
	blocks := make([]*Block, len(results))
	for i, r := range results {
		blocks[i] = NewToolResultBlock(i, r)
	}
	c.messages = append(c.messages, Message{Role: RoleUser, Blocks: blocks})
	return nil
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
