package analyst

import (
	"context"
	"io"
)

// Provider is the streaming, tool-calling endpoint the analyzer talks to.
//
// Types used by this interface:
//   - GenerateRequest, Message: defined in request.go
//   - ToolDefinition: defined in tools.go
type Provider interface {
	// StreamResponse sends one turn and returns the raw event-stream body.
	// The request is always streamed. Any non-success status or network
	// fault is returned as a *TransportError with the body read fully.
	// The caller closes the returned reader.
	//
	// Usage:
	//   body, err := provider.StreamResponse(ctx, req)
	//   if err != nil { return err }
	//   defer body.Close()
	//   msg, err := Accumulate(NewDecoder(body), logger)
	StreamResponse(ctx context.Context, req *GenerateRequest) (io.ReadCloser, error)

	// Name returns the provider identifier (e.g., "anthropic", "lorem")
	Name() ProviderID

	// SupportsModel returns true if the provider serves the given model.
	SupportsModel(model string) bool
}
