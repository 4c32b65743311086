package analyst

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults for one analysis
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 64000
	DefaultMaxTurns  = 3
)

// Outcome labels recorded per analysis
const (
	outcomeFinal              = "final"
	outcomeTruncated          = "truncated"
	outcomeTransportError     = "transport_error"
	outcomeTurnBudgetExceeded = "turn_budget_exceeded"
	outcomeInvalidRequest     = "invalid_request"
)

// Result is the terminal outcome of a successful analysis.
type Result struct {
	// Text is the final report, or the partial text when Truncated
	Text string

	// Truncated is set when the model hit the output-size ceiling.
	// Callers present it with a notice; it is not an error.
	Truncated bool

	// Turns is the number of endpoint calls made
	Turns int

	// Usage sums the token usage of every turn that reported it
	Usage Usage

	// Model is the model that produced the last turn
	Model string

	// CostUSD estimates the price of Usage; 0 when the model is not registered
	CostUSD float64

	// RequestID correlates the log lines of this analysis
	RequestID string
}

// Analyzer drives the bounded multi-turn conversation with the endpoint.
// An Analyzer is safe for concurrent use; each Run owns its own conversation.
type Analyzer struct {
	provider Provider
	executor *ToolExecutor
	logger   zerolog.Logger
	metrics  *Metrics
	models   *ModelRegistry
	maxTurns int
	params   RequestParams
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithMetrics sets the collectors updated per turn and per analysis.
func WithMetrics(m *Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithModels sets the registry used to bound max_tokens and price usage.
func WithModels(r *ModelRegistry) Option {
	return func(a *Analyzer) { a.models = r }
}

// WithMaxTurns sets the iteration ceiling. Values below 1 are ignored.
func WithMaxTurns(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithModel sets the model identifier sent on every turn.
func WithModel(model string) Option {
	return func(a *Analyzer) {
		if model != "" {
			a.params.Model = model
		}
	}
}

// WithMaxTokens sets the output-size ceiling sent on every turn.
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.params.MaxTokens = n
		}
	}
}

// NewAnalyzer creates an analyzer over a provider and a tool executor.
func NewAnalyzer(provider Provider, executor *ToolExecutor, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		executor: executor,
		logger:   zerolog.Nop(),
		maxTurns: DefaultMaxTurns,
		params: RequestParams{
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Params returns the request params used by Analyze.
func (a *Analyzer) Params() RequestParams {
	return a.params
}

// Analyze runs one analysis of a subject: it renders the analyst system
// prompt, seeds a conversation with a single user turn and calls Run.
func (a *Analyzer) Analyze(ctx context.Context, subject Subject) (*Result, error) {
	subject, err := subject.Normalize()
	if err != nil {
		a.metrics.recordAnalysis(outcomeInvalidRequest)
		return nil, err
	}

	system, err := RenderSystemPrompt(subject, a.executor.historyDays, a.params.MaxTokens)
	if err != nil {
		return nil, err
	}
	params := a.params
	params.System = &system

	return a.Run(ctx, NewConversation(subject.SeedPrompt()), params)
}

// Run drives conv until a terminal assistant message or the turn budget.
//
// After each assistant message:
//  1. max_tokens returns the text so far as a truncated result, even when
//     the message also requested tools
//  2. tool_use with at least one invocation runs the tools, appends one
//     results turn and continues
//  3. anything else returns the first text block
//
// Transport failures end the run immediately and are never retried.
func (a *Analyzer) Run(ctx context.Context, conv *Conversation, params RequestParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		a.metrics.recordAnalysis(outcomeInvalidRequest)
		return nil, err
	}
	if !a.provider.SupportsModel(params.Model) {
		a.metrics.recordAnalysis(outcomeInvalidRequest)
		return nil, &ValidationError{
			Field:  "model",
			Value:  params.Model,
			Reason: fmt.Sprintf("not served by provider %s", a.provider.Name()),
			Err:    ErrInvalidRequest,
		}
	}
	if err := a.models.checkParams(params); err != nil {
		a.metrics.recordAnalysis(outcomeInvalidRequest)
		return nil, err
	}

	requestID := uuid.NewString()
	logger := a.logger.With().Str("request_id", requestID).Str("provider", a.provider.Name().String()).Logger()
	tools := a.executor.Catalog().Definitions()
	result := &Result{RequestID: requestID}

	for turn := 1; turn <= a.maxTurns; turn++ {
		turnLogger := logger.With().Int("turn", turn).Logger()
		turnLogger.Info().Str("model", params.Model).Int("messages", conv.Len()).Msg("calling endpoint")

		msg, err := a.send(ctx, turnLogger, &GenerateRequest{
			Messages: conv.Messages(),
			Tools:    tools,
			Params:   params,
		})
		if err != nil {
			turnLogger.Error().Err(err).Bool("transport", IsTransportError(err)).Msg("endpoint call failed")
			if IsTransportError(err) {
				a.metrics.recordAnalysis(outcomeTransportError)
			} else {
				a.metrics.recordAnalysis(outcomeInvalidRequest)
			}
			return nil, err
		}

		result.Turns = turn
		result.Model = msg.Model
		if msg.Usage != nil {
			result.Usage = result.Usage.Add(*msg.Usage)
			result.CostUSD = a.models.estimateCost(params.Model, result.Usage)
		}
		a.metrics.recordTurn(msg.StopReason)
		conv.AppendAssistant(msg)
		turnLogger.Info().
			Str("stop_reason", string(msg.StopReason)).
			Int("blocks", len(msg.PresentBlocks())).
			Int("warnings", len(msg.Warnings)).
			Msg("stream completed")

		if msg.StopReason == StopReasonMaxTokens {
			turnLogger.Warn().Msg("output truncated at max_tokens")
			result.Text = msg.Text()
			result.Truncated = true
			a.metrics.recordAnalysis(outcomeTruncated)
			return result, nil
		}

		uses := msg.ToolUses()
		if msg.StopReason == StopReasonToolUse && len(uses) > 0 {
			results := a.executor.Execute(ctx, uses)
			if err := conv.AppendToolResults(results); err != nil {
				return nil, err
			}
			continue
		}

		result.Text = msg.FirstText()
		a.metrics.recordAnalysis(outcomeFinal)
		return result, nil
	}

	logger.Error().Int("max_turns", a.maxTurns).Msg("turn budget exceeded")
	a.metrics.recordAnalysis(outcomeTurnBudgetExceeded)
	return nil, &TurnBudgetExceededError{MaxTurns: a.maxTurns}
}

// send performs one streamed endpoint call and folds the body into a message.
// Provider transport failures and stream read failures come back as a
// *TransportError. Anything else the provider rejects locally, such as a
// request it cannot build, is returned unchanged.
func (a *Analyzer) send(ctx context.Context, logger zerolog.Logger, req *GenerateRequest) (*AssistantMessage, error) {
	body, err := a.provider.StreamResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	msg, err := Accumulate(NewDecoder(body), logger)
	if err != nil {
		return nil, &TransportError{Provider: a.provider.Name().String(), Err: err}
	}
	return msg, nil
}
