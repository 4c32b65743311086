package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/rs/zerolog"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// Provider is a mock endpoint that streams scripted event streams filled with
// lorem ipsum. Used for demos and tests without requiring real API keys.
//
// The script follows the analysis loop: while no tool results are in the
// conversation it requests every offered tool for the subject's ticker;
// once results are present it streams a lorem report and stops naturally.
type Provider struct {
	generator *loremgen.Lorem
	logger    zerolog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		generator: loremgen.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() analyst.ProviderID {
	return analyst.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-instant", "lorem-cutoff"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// getStreamDelay returns the delay between words based on the model name.
// - lorem-instant: no delay
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// isCutoffModel returns true if the model should simulate a max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// reportWords caps the length of the lorem report.
const reportWords = 120

// StreamResponse returns a scripted event stream for the next turn.
func (p *Provider) StreamResponse(ctx context.Context, req *analyst.GenerateRequest) (io.ReadCloser, error) {
	if !p.SupportsModel(req.Params.Model) {
		return nil, &analyst.ValidationError{
			Field:  "model",
			Value:  req.Params.Model,
			Reason: "model not supported by Lorem provider (must start with 'lorem-')",
			Err:    analyst.ErrInvalidRequest,
		}
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}

	s := &script{
		model:     req.Params.Model,
		delay:     getStreamDelay(req.Params.Model),
		maxTokens: req.Params.MaxTokens,
	}
	if hasToolResults(req.Messages) || len(req.Tools) == 0 {
		s.report = p.generateTextWords(reportWords)
	} else {
		s.ticker = subjectTicker(req.Messages)
		for _, t := range req.Tools {
			s.tools = append(s.tools, t.Name)
		}
	}

	p.logger.Debug().
		Str("model", s.model).
		Int("tools", len(s.tools)).
		Bool("report", s.report != "").
		Msg("lorem stream started")

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.run(ctx, pw))
	}()
	return pr, nil
}

// script renders one scripted turn as event-stream frames.
type script struct {
	model     string
	delay     time.Duration
	maxTokens int

	// exactly one of report or tools drives the turn
	report string
	ticker string
	tools  []string
}

func (s *script) run(ctx context.Context, w io.Writer) error {
	emit := func(payload map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return writeFrame(w, string(b))
	}

	if err := emit(map[string]any{
		"type":    analyst.EventMessageStart,
		"message": map[string]any{"model": s.model, "role": "assistant"},
	}); err != nil {
		return err
	}

	var (
		stopReason   = analyst.StopReasonEndTurn
		outputTokens int
		err          error
	)
	if s.report != "" {
		outputTokens, stopReason, err = s.streamText(ctx, emit)
	} else {
		outputTokens, err = s.streamToolUses(ctx, emit)
		stopReason = analyst.StopReasonToolUse
	}
	if err != nil {
		return err
	}

	if err := emit(map[string]any{
		"type":  analyst.EventMessageDelta,
		"delta": map[string]any{"stop_reason": string(stopReason)},
		"usage": map[string]any{"output_tokens": outputTokens},
	}); err != nil {
		return err
	}
	if err := emit(map[string]any{"type": analyst.EventMessageStop}); err != nil {
		return err
	}
	_, err = io.WriteString(w, "data: [DONE]\n\n")
	return err
}

// streamText streams the report word by word. Cutoff models stop at
// maxTokens words and report max_tokens.
func (s *script) streamText(ctx context.Context, emit func(map[string]any) error) (int, analyst.StopReason, error) {
	if err := emit(map[string]any{
		"type":          analyst.EventContentBlockStart,
		"index":         0,
		"content_block": map[string]any{"type": analyst.BlockTypeText, "text": ""},
	}); err != nil {
		return 0, "", err
	}

	words := strings.Fields(s.report)
	stopReason := analyst.StopReasonEndTurn
	sent := 0
	for _, word := range words {
		if sent >= s.maxTokens || (isCutoffModel(s.model) && sent >= len(words)/2) {
			stopReason = analyst.StopReasonMaxTokens
			break
		}
		if err := emit(map[string]any{
			"type":  analyst.EventContentBlockDelta,
			"index": 0,
			"delta": map[string]any{"type": analyst.DeltaTypeText, "text": word + " "},
		}); err != nil {
			return sent, "", err
		}
		if err := sleep(ctx, s.delay); err != nil {
			return sent, "", err
		}
		sent++
	}

	if err := emit(map[string]any{"type": analyst.EventContentBlockStop, "index": 0}); err != nil {
		return sent, "", err
	}
	return sent, stopReason, nil
}

// streamToolUses opens with a short text block, then one tool_use block per
// tool whose input arrives as small partial_json fragments.
func (s *script) streamToolUses(ctx context.Context, emit func(map[string]any) error) (int, error) {
	intro := fmt.Sprintf("Collecting market data for %s.", s.ticker)
	if err := emit(map[string]any{
		"type":          analyst.EventContentBlockStart,
		"index":         0,
		"content_block": map[string]any{"type": analyst.BlockTypeText, "text": intro},
	}); err != nil {
		return 0, err
	}
	if err := emit(map[string]any{"type": analyst.EventContentBlockStop, "index": 0}); err != nil {
		return 0, err
	}

	input, err := json.Marshal(map[string]string{"ticker": s.ticker})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tool input: %w", err)
	}

	tokens := len(strings.Fields(intro))
	for i, name := range s.tools {
		index := i + 1
		if err := emit(map[string]any{
			"type":  analyst.EventContentBlockStart,
			"index": index,
			"content_block": map[string]any{
				"type":  analyst.BlockTypeToolUse,
				"id":    fmt.Sprintf("toolu_%s_%d", name, index),
				"name":  name,
				"input": map[string]any{},
			},
		}); err != nil {
			return tokens, err
		}
		for _, fragment := range splitFragments(string(input), 5) {
			if err := emit(map[string]any{
				"type":  analyst.EventContentBlockDelta,
				"index": index,
				"delta": map[string]any{"type": analyst.DeltaTypeInputJSON, "partial_json": fragment},
			}); err != nil {
				return tokens, err
			}
			if err := sleep(ctx, s.delay/10); err != nil {
				return tokens, err
			}
		}
		if err := emit(map[string]any{"type": analyst.EventContentBlockStop, "index": index}); err != nil {
			return tokens, err
		}
		// Rough: 1 token per 4 chars in JSON
		tokens += len(input) / 4
	}
	return tokens, nil
}

// writeFrame writes one data frame in two writes so readers see lines split
// across chunks.
func writeFrame(w io.Writer, payload string) error {
	frame := "data: " + payload + "\n\n"
	mid := len(frame) / 2
	if _, err := io.WriteString(w, frame[:mid]); err != nil {
		return err
	}
	_, err := io.WriteString(w, frame[mid:])
	return err
}

func splitFragments(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	return append(out, s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hasToolResults reports whether any turn already carries tool outcomes.
func hasToolResults(messages []analyst.Message) bool {
	for _, msg := range messages {
		for _, b := range msg.Blocks {
			if b.IsToolResult() {
				return true
			}
		}
	}
	return false
}

// subjectTicker takes the last word of the first user text turn.
func subjectTicker(messages []analyst.Message) string {
	for _, msg := range messages {
		if msg.Role != analyst.RoleUser {
			continue
		}
		for _, b := range msg.Blocks {
			if !b.IsText() {
				continue
			}
			if fields := strings.Fields(b.Text); len(fields) > 0 {
				return strings.ToUpper(fields[len(fields)-1])
			}
		}
	}
	return "LOREM"
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (p *Provider) generateTextWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		// Generate sentence with 5-15 words
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")

		wordCount += len(strings.Fields(sentence))
	}

	return strings.TrimSpace(sb.String())
}
