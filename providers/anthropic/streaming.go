package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// StreamResponse posts one turn with stream forced on and returns the
// event-stream body. Non-2xx answers are read fully into a TransportError.
func (p *Provider) StreamResponse(ctx context.Context, req *analyst.GenerateRequest) (io.ReadCloser, error) {
	body, err := buildRequestBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &analyst.TransportError{Provider: p.Name().String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errBody = []byte(fmt.Sprintf("<failed to read body: %v>", readErr))
		}
		return nil, &analyst.TransportError{
			Provider:   p.Name().String(),
			StatusCode: resp.StatusCode,
			Body:       string(errBody),
			Err:        fmt.Errorf("anthropic API error: %s", resp.Status),
		}
	}

	return resp.Body, nil
}
