package analyst

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrTransport indicates the endpoint call itself failed (status or network).
	ErrTransport = errors.New("analyst: endpoint transport failure")

	// ErrTurnBudgetExceeded indicates the loop hit its iteration ceiling.
	ErrTurnBudgetExceeded = errors.New("analyst: turn budget exceeded")

	// ErrInvalidAPIKey indicates the API key is missing.
	ErrInvalidAPIKey = errors.New("analyst: invalid API key")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("analyst: invalid request")

	// ErrToolNotFound indicates a tool name outside the catalog.
	ErrToolNotFound = errors.New("analyst: tool not found")

	// ErrNoMarketData indicates the market-data collaborator had nothing for a ticker.
	ErrNoMarketData = errors.New("analyst: no market data")
)

// TransportError is a fatal failure of the endpoint call.
// It is never retried; StatusCode and Body are populated when the endpoint answered.
type TransportError struct {
	Provider   string // The provider name
	StatusCode int    // HTTP status code (0 for network faults)
	Body       string // Response body, read fully
	Err        error  // Underlying cause
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider '%s' error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider '%s' error", e.Provider)
}

// Unwrap exposes both the sentinel and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

// TurnBudgetExceededError is returned when MaxTurns iterations ran without a
// terminal assistant message.
type TurnBudgetExceededError struct {
	MaxTurns int
}

func (e *TurnBudgetExceededError) Error() string {
	return fmt.Sprintf("max turns (%d) reached without final response", e.MaxTurns)
}

func (e *TurnBudgetExceededError) Unwrap() error {
	return ErrTurnBudgetExceeded
}

// ValidationError represents an error in request parameter validation.
type ValidationError struct {
	Field  string // The parameter field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DecodeWarning describes a stream payload or tool input that could not be
// decoded. Warnings are recovered where they occur and never fail a turn.
type DecodeWarning struct {
	// Index is the block index involved, or -1 when unknown
	Index int

	// Payload is the offending raw data
	Payload string

	// Err is the parse failure
	Err error
}

func (w DecodeWarning) String() string {
	if w.Index >= 0 {
		return fmt.Sprintf("block %d: %v", w.Index, w.Err)
	}
	return w.Err.Error()
}

// IsTransportError checks if an error came from the endpoint call.
func IsTransportError(err error) bool {
	return err != nil && errors.Is(err, ErrTransport)
}

// IsTurnBudgetExceeded checks if an error is the iteration ceiling.
func IsTurnBudgetExceeded(err error) bool {
	return err != nil && errors.Is(err, ErrTurnBudgetExceeded)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		// HTTP 401/403 indicate auth issues
		return transportErr.StatusCode == 401 || transportErr.StatusCode == 403
	}

	return false
}
