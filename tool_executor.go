package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Outcome messages reported to the model
const (
	outcomeToolNotFound = "Tool not found"
	outcomeNoData       = "No data"
	outcomeNoDetails    = "No details"
)

// MarketData is the read-only market-data collaborator behind the tools.
// Each method returns the raw JSON record for a ticker, or an empty payload
// when the source has nothing. Implementations must tolerate concurrent calls.
type MarketData interface {
	RealtimeSnapshot(ctx context.Context, ticker string) ([]byte, error)
	HistoricalPrices(ctx context.Context, ticker string, days int) ([]byte, error)
	TickerDetails(ctx context.Context, ticker string) ([]byte, error)
}

// ToolExecutor runs the tool invocations of one assistant message.
type ToolExecutor struct {
	market         MarketData
	catalog        *Catalog
	logger         zerolog.Logger
	metrics        *Metrics
	historyDays    int
	maxResultBytes int
}

// ExecutorOption configures a ToolExecutor.
type ExecutorOption func(*ToolExecutor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *ToolExecutor) { e.logger = logger }
}

// WithExecutorMetrics sets the collectors updated per invocation.
func WithExecutorMetrics(m *Metrics) ExecutorOption {
	return func(e *ToolExecutor) { e.metrics = m }
}

// WithHistoryDays sets how many daily bars get_historical_prices returns.
func WithHistoryDays(days int) ExecutorOption {
	return func(e *ToolExecutor) {
		if days > 0 {
			e.historyDays = days
		}
	}
}

// WithMaxResultBytes caps the serialized size of one outcome.
func WithMaxResultBytes(n int) ExecutorOption {
	return func(e *ToolExecutor) {
		if n > 0 {
			e.maxResultBytes = n
		}
	}
}

// NewToolExecutor creates an executor over a market-data source and catalog.
func NewToolExecutor(market MarketData, catalog *Catalog, opts ...ExecutorOption) *ToolExecutor {
	e := &ToolExecutor{
		market:         market,
		catalog:        catalog,
		logger:         zerolog.Nop(),
		historyDays:    DefaultHistoryDays,
		maxResultBytes: DefaultMaxResultBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the catalog the executor resolves against.
func (e *ToolExecutor) Catalog() *Catalog {
	return e.catalog
}

// Execute runs every invocation concurrently and waits for all of them.
// The result slice is index-aligned with calls and every result carries its
// invocation id. A failing invocation never affects its siblings.
func (e *ToolExecutor) Execute(ctx context.Context, calls []*ToolUse) []ToolResult {
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i := range calls {
		go func() {
			defer wg.Done()
			results[i] = e.executeOne(ctx, calls[i])
		}()
	}
	wg.Wait()
	return results
}

func (e *ToolExecutor) executeOne(ctx context.Context, call *ToolUse) (result ToolResult) {
	kind := ResolveTool(call.Name)
	logger := e.logger.With().Str("tool", call.Name).Str("tool_use_id", call.ID).Logger()
	result.ToolUseID = call.ID

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("tool panicked")
			result = ToolResult{ToolUseID: call.ID, Content: errorPayload(fmt.Sprintf("tool panicked: %v", r)), IsError: true}
		}
		e.metrics.recordToolCall(kind.String(), result.IsError)
	}()

	logger.Info().Msg("calling tool")
	content, err := e.run(ctx, kind, call)
	if err != nil {
		logger.Warn().Err(err).Msg("tool failed")
		result.Content = errorPayload(outcomeMessage(err))
		result.IsError = true
		return result
	}
	if len(content) > e.maxResultBytes {
		logger.Warn().Int("bytes", len(content)).Msg("tool result exceeds size cap")
		result.Content = errorPayload(fmt.Sprintf("result too large (%d bytes)", len(content)))
		result.IsError = true
		return result
	}
	logger.Info().Msg("tool completed")
	result.Content = content
	return result
}

func (e *ToolExecutor) run(ctx context.Context, kind ToolKind, call *ToolUse) (string, error) {
	if kind == ToolKindUnknown || !e.catalog.Has(call.Name) {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}
	if call.InputErr != nil {
		return "", fmt.Errorf("invalid tool input %q: %w", call.RawInput, call.InputErr)
	}
	if err := e.catalog.ValidateInput(call.Name, call.Input); err != nil {
		return "", fmt.Errorf("invalid tool arguments: %w", err)
	}
	ticker := strings.ToUpper(strings.TrimSpace(fmt.Sprint(call.Input["ticker"])))

	switch kind {
	case ToolKindRealtimeSnapshot:
		raw, err := e.market.RealtimeSnapshot(ctx, ticker)
		if err != nil {
			return "", err
		}
		if isEmptyPayload(raw) {
			return errorPayload(outcomeNoData), nil
		}
		return projectSnapshot(raw)

	case ToolKindHistoricalPrices:
		raw, err := e.market.HistoricalPrices(ctx, ticker, e.historyDays)
		if err != nil {
			return "", err
		}
		if isEmptyPayload(raw) {
			return "[]", nil
		}
		return projectHistory(raw, e.historyDays, e.maxResultBytes)

	case ToolKindTickerDetails:
		raw, err := e.market.TickerDetails(ctx, ticker)
		if err != nil {
			return "", err
		}
		if isEmptyPayload(raw) {
			return errorPayload(outcomeNoDetails), nil
		}
		return projectDetails(raw)
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
}

// outcomeMessage renders an error for the model.
func outcomeMessage(err error) string {
	if errors.Is(err, ErrToolNotFound) {
		return outcomeToolNotFound
	}
	return err.Error()
}
