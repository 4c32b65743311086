package analyst

import "strings"

// AssistantMessage is one assistant turn folded from a response stream.
type AssistantMessage struct {
	// Blocks is index-addressed. A nil entry marks an index for which no
	// block start or delta arrived; later blocks keep their position.
	Blocks []*Block

	// Model is the model that produced the message (from message_start)
	Model string

	// StopReason is the last stop_reason seen in a message_delta
	StopReason StopReason

	// Usage is the last usage seen in a message_delta (nil if none arrived)
	Usage *Usage

	// Warnings lists payloads and tool inputs that could not be decoded
	Warnings []DecodeWarning
}

// ToolUses returns the tool invocations in block order.
func (m *AssistantMessage) ToolUses() []*ToolUse {
	var out []*ToolUse
	for _, b := range m.Blocks {
		if b.IsToolUse() {
			out = append(out, b.ToolUse)
		}
	}
	return out
}

// FirstText returns the content of the first text block, or "".
func (m *AssistantMessage) FirstText() string {
	for _, b := range m.Blocks {
		if b.IsText() {
			return b.Text
		}
	}
	return ""
}

// Text returns all text blocks joined in order.
func (m *AssistantMessage) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.IsText() {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// PresentBlocks returns the non-nil blocks in order.
func (m *AssistantMessage) PresentBlocks() []*Block {
	out := make([]*Block, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
