package analyst

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Stream event types sent by the endpoint
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta type constants for content_block_delta events
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// StreamEvent is one decoded payload of the response stream.
// Only the fields relevant to its Type are populated.
type StreamEvent struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`

	// ContentBlock is set on content_block_start
	ContentBlock *struct {
		Type string `json:"type"`
		Text string `json:"text"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`

	// Delta is set on content_block_delta and message_delta
	Delta *struct {
		Type        string  `json:"type"`
		Text        string  `json:"text"`
		PartialJSON string  `json:"partial_json"`
		StopReason  *string `json:"stop_reason"`
	} `json:"delta,omitempty"`

	// Usage is set on message_delta
	Usage *Usage `json:"usage,omitempty"`

	// Message is set on message_start
	Message *struct {
		Model string `json:"model"`
		Usage *Usage `json:"usage,omitempty"`
	} `json:"message,omitempty"`

	// Error is set on mid-stream error events
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// maxBlockIndex bounds the block slice against hostile or corrupt indices.
const maxBlockIndex = 1024

// Accumulator folds stream payloads into one AssistantMessage.
// It must be fed in arrival order by a single goroutine.
type Accumulator struct {
	blocks     []*Block
	model      string
	stopReason StopReason
	startUsage *Usage
	usage      *Usage
	warnings   []DecodeWarning
	logger     zerolog.Logger
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(logger zerolog.Logger) *Accumulator {
	return &Accumulator{logger: logger}
}

// Add applies one raw payload. Malformed payloads are logged and recorded as
// warnings; they never stop accumulation.
func (a *Accumulator) Add(payload string) {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		a.warn(-1, payload, fmt.Errorf("malformed stream payload: %w", err))
		return
	}

	switch ev.Type {
	case EventMessageStart:
		if ev.Message != nil {
			a.model = ev.Message.Model
			if ev.Message.Usage != nil {
				u := *ev.Message.Usage
				a.startUsage = &u
				a.usage = &u
			}
		}

	case EventContentBlockStart:
		idx, ok := a.index(ev, payload)
		if !ok {
			return
		}
		if ev.ContentBlock == nil {
			a.warn(idx, payload, fmt.Errorf("content_block_start without content_block"))
			return
		}
		switch ev.ContentBlock.Type {
		case BlockTypeToolUse:
			// Input always restarts as an empty accumulator, whatever the start event carried.
			a.set(idx, NewToolUseBlock(idx, ev.ContentBlock.ID, ev.ContentBlock.Name))
		case BlockTypeText:
			a.set(idx, NewTextBlock(idx, ev.ContentBlock.Text))
		default:
			a.logger.Debug().Int("index", idx).Str("block_type", ev.ContentBlock.Type).Msg("skipping unsupported block type")
		}

	case EventContentBlockDelta:
		idx, ok := a.index(ev, payload)
		if !ok {
			return
		}
		if ev.Delta == nil {
			a.warn(idx, payload, fmt.Errorf("content_block_delta without delta"))
			return
		}
		switch ev.Delta.Type {
		case DeltaTypeText:
			b := a.get(idx)
			switch {
			case b == nil:
				b = NewTextBlock(idx, "")
				a.set(idx, b)
			case !b.IsText():
				a.warn(idx, payload, fmt.Errorf("text fragment for %s block", b.BlockType))
				return
			}
			b.Text += ev.Delta.Text
		case DeltaTypeInputJSON:
			b := a.get(idx)
			switch {
			case b == nil:
				a.logger.Warn().Int("index", idx).Msg("input fragment without tool_use start, starting empty invocation")
				// The placeholder id lets the outcome be replayed on the next turn.
				b = NewToolUseBlock(idx, orphanToolUseID(idx), "")
				a.set(idx, b)
			case !b.IsToolUse():
				a.warn(idx, payload, fmt.Errorf("input fragment for %s block", b.BlockType))
				return
			}
			b.ToolUse.AppendInput(ev.Delta.PartialJSON)
		default:
			a.logger.Debug().Int("index", idx).Str("delta_type", ev.Delta.Type).Msg("skipping unsupported delta type")
		}

	case EventMessageDelta:
		if ev.Delta != nil && ev.Delta.StopReason != nil && *ev.Delta.StopReason != "" {
			a.stopReason = StopReason(*ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			u := mergeUsage(a.startUsage, *ev.Usage)
			a.usage = &u
		}

	case EventError:
		msg := "unknown stream error"
		if ev.Error != nil {
			msg = ev.Error.Type + ": " + ev.Error.Message
		}
		a.warn(-1, payload, fmt.Errorf("stream error event: %s", msg))

	case EventContentBlockStop, EventMessageStop, EventPing:
		// Nothing to accumulate

	default:
		a.logger.Debug().Str("event_type", ev.Type).Msg("skipping unknown stream event")
	}
}

// Finish finalizes every tool input and returns the message. Parse failures
// keep the raw input and are recorded as warnings.
func (a *Accumulator) Finish() *AssistantMessage {
	for _, b := range a.blocks {
		if !b.IsToolUse() {
			continue
		}
		if err := b.ToolUse.Finalize(); err != nil {
			a.warn(b.Sequence, b.ToolUse.RawInput, fmt.Errorf("failed to parse tool input for %s: %w", b.ToolUse.Name, err))
		}
	}

	return &AssistantMessage{
		Blocks:     a.blocks,
		Model:      a.model,
		StopReason: a.stopReason,
		Usage:      a.usage,
		Warnings:   a.warnings,
	}
}

// Accumulate drains dec into an accumulator. The only error it returns is a
// read failure of the underlying stream.
func Accumulate(dec *Decoder, logger zerolog.Logger) (*AssistantMessage, error) {
	acc := NewAccumulator(logger)
	for dec.Next() {
		acc.Add(dec.Data())
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}
	return acc.Finish(), nil
}

func (a *Accumulator) index(ev StreamEvent, payload string) (int, bool) {
	if ev.Index == nil || *ev.Index < 0 || *ev.Index >= maxBlockIndex {
		a.warn(-1, payload, fmt.Errorf("%s without valid index", ev.Type))
		return 0, false
	}
	return *ev.Index, true
}

func (a *Accumulator) get(idx int) *Block {
	if idx >= len(a.blocks) {
		return nil
	}
	return a.blocks[idx]
}

// set places b at idx, growing the slice with nil placeholders as needed.
func (a *Accumulator) set(idx int, b *Block) {
	for len(a.blocks) <= idx {
		a.blocks = append(a.blocks, nil)
	}
	a.blocks[idx] = b
}

// mergeUsage fills counters a message_delta left at zero from the
// message_start usage. Input tokens are usually only reported at the start.
func mergeUsage(start *Usage, delta Usage) Usage {
	if start == nil {
		return delta
	}
	if delta.InputTokens == 0 {
		delta.InputTokens = start.InputTokens
	}
	if delta.OutputTokens == 0 {
		delta.OutputTokens = start.OutputTokens
	}
	if delta.CacheCreationInputTokens == 0 {
		delta.CacheCreationInputTokens = start.CacheCreationInputTokens
	}
	if delta.CacheReadInputTokens == 0 {
		delta.CacheReadInputTokens = start.CacheReadInputTokens
	}
	return delta
}

func orphanToolUseID(idx int) string {
	return fmt.Sprintf("orphan_%d", idx)
}

func (a *Accumulator) warn(idx int, payload string, err error) {
	a.logger.Warn().Err(err).Int("index", idx).Msg("stream decode warning")
	a.warnings = append(a.warnings, DecodeWarning{Index: idx, Payload: payload, Err: err})
}
