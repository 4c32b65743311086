package analyst

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Block type constants
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result" // Synthetic user block carrying a tool outcome
)

// Role constants for conversation messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Block represents one addressable unit of a message.
//
// It is a tagged union keyed by BlockType:
//   - text: Text is set
//   - tool_use: ToolUse is set
//   - tool_result: ToolResult is set
type Block struct {
	// BlockType indicates which payload is populated
	// Values: "text", "tool_use", "tool_result"
	BlockType string `json:"block_type"`

	// Sequence is the position of this block in its message (0-indexed)
	Sequence int `json:"sequence"`

	// Text holds the content of text blocks
	Text string `json:"text,omitempty"`

	// ToolUse holds the invocation for tool_use blocks
	ToolUse *ToolUse `json:"tool_use,omitempty"`

	// ToolResult holds the outcome for tool_result blocks
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// NewTextBlock returns a text block at the given sequence.
func NewTextBlock(seq int, text string) *Block {
	return &Block{BlockType: BlockTypeText, Sequence: seq, Text: text}
}

// NewToolUseBlock returns a tool_use block with an empty input accumulator.
func NewToolUseBlock(seq int, id, name string) *Block {
	return &Block{
		BlockType: BlockTypeToolUse,
		Sequence:  seq,
		ToolUse:   &ToolUse{ID: id, Name: name},
	}
}

// NewToolResultBlock wraps a tool outcome in a block.
func NewToolResultBlock(seq int, result ToolResult) *Block {
	r := result
	return &Block{BlockType: BlockTypeToolResult, Sequence: seq, ToolResult: &r}
}

// IsText returns true if this is a text block
func (b *Block) IsText() bool {
	return b != nil && b.BlockType == BlockTypeText
}

// IsToolUse returns true if this is a tool_use block
func (b *Block) IsToolUse() bool {
	return b != nil && b.BlockType == BlockTypeToolUse && b.ToolUse != nil
}

// IsToolResult returns true if this is a tool_result block
func (b *Block) IsToolResult() bool {
	return b != nil && b.BlockType == BlockTypeToolResult && b.ToolResult != nil
}

// ToolUse is a model request to call a named tool.
//
// RawInput accumulates input_json_delta fragments while streaming. Finalize
// parses it into Input exactly once; if parsing fails RawInput is kept and the
// failure is stored in InputErr so the executor can report it to the model.
type ToolUse struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RawInput is the concatenation of all partial input fragments
	RawInput string `json:"raw_input"`

	// Input is the parsed argument object (nil until finalized, or on failure).
	// Numeric arguments are json.Number.
	Input map[string]any `json:"input,omitempty"`

	// InputErr records why RawInput could not be parsed
	InputErr error `json:"-"`

	finalized bool
}

// AppendInput adds a partial JSON fragment to the input accumulator.
func (t *ToolUse) AppendInput(fragment string) {
	t.RawInput += fragment
}

// Finalize parses the accumulated input. An empty accumulator finalizes to an
// empty object. Numbers are kept as json.Number. Calling Finalize more than
// once has no effect.
func (t *ToolUse) Finalize() error {
	if t.finalized {
		return t.InputErr
	}
	t.finalized = true

	if strings.TrimSpace(t.RawInput) == "" {
		t.Input = map[string]any{}
		return nil
	}

	// Numbers stay json.Number so large integers replay exactly.
	dec := json.NewDecoder(strings.NewReader(t.RawInput))
	dec.UseNumber()
	var input map[string]any
	if err := dec.Decode(&input); err != nil {
		t.InputErr = err
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		t.InputErr = fmt.Errorf("unexpected data after tool input object")
		return t.InputErr
	}
	if input == nil {
		input = map[string]any{}
	}
	t.Input = input
	return nil
}

// Finalized reports whether Finalize has run.
func (t *ToolUse) Finalized() bool {
	return t.finalized
}

// ToolResult is the outcome of one tool invocation, matched back to its
// ToolUse by ToolUseID.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`

	// Content is the serialized JSON outcome handed to the model
	Content string `json:"content"`

	// IsError marks outcomes that carry an {"error": ...} payload
	IsError bool `json:"is_error,omitempty"`
}

// StopReason classifies why an assistant message ended.
type StopReason string

const (
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonUnknown      StopReason = ""
)

// IsNatural returns true for reasons that mean the model finished on its own.
func (r StopReason) IsNatural() bool {
	return r == StopReasonEndTurn || r == StopReasonStopSequence
}

// Usage reports token counts for one assistant message.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Add returns the sum of two usage records.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}
