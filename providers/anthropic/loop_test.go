package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	analyst "github.com/haowjy/meridian-analyst-go"
)

// emptyMarket has nothing for any ticker.
type emptyMarket struct{}

func (emptyMarket) RealtimeSnapshot(context.Context, string) ([]byte, error) { return nil, nil }
func (emptyMarket) HistoricalPrices(context.Context, string, int) ([]byte, error) {
	return nil, nil
}
func (emptyMarket) TickerDetails(context.Context, string) ([]byte, error) { return nil, nil }

func TestAnalyzerRun_InputFragmentWithoutStart(t *testing.T) {
	turns := []string{
		"data: {\"type\":\"message_start\",\"message\":{\"model\":\"claude-sonnet-4-5-20250929\",\"usage\":{\"input_tokens\":40,\"output_tokens\":1}}}\n" +
			"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"ticker\\\":\\\"AAPL\\\"}\"}}\n" +
			"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"},\"usage\":{\"output_tokens\":12}}\n",
		sseBody,
	}

	var (
		mu     sync.Mutex
		bodies [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		turn := len(bodies)
		bodies = append(bodies, body)
		mu.Unlock()

		w.Header().Set("content-type", "text/event-stream")
		_, _ = io.WriteString(w, turns[min(turn, len(turns)-1)])
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)
	catalog, err := analyst.DefaultCatalog()
	require.NoError(t, err)
	a := analyst.NewAnalyzer(p, analyst.NewToolExecutor(emptyMarket{}, catalog))

	result, err := a.Run(context.Background(), analyst.NewConversation("Analyze AAPL"), a.Params())
	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 40, result.Usage.InputTokens)
	assert.Equal(t, 15, result.Usage.OutputTokens)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	replay := gjson.ParseBytes(bodies[1])
	assert.Equal(t, "tool_use", replay.Get("messages.1.content.0.type").String())
	assert.Equal(t, "orphan_0", replay.Get("messages.1.content.0.id").String())
	assert.Equal(t, "tool_result", replay.Get("messages.2.content.0.type").String())
	assert.Equal(t, "orphan_0", replay.Get("messages.2.content.0.tool_use_id").String())
	assert.True(t, replay.Get("messages.2.content.0.is_error").Bool())
	assert.Contains(t, replay.Get("messages.2.content.0").Raw, "Tool not found")
}

func TestStreamResponse_RequestBuildErrorIsNotTransport(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	req := testRequest(t)
	req.Messages = append(req.Messages, analyst.Message{
		Role:   analyst.RoleAssistant,
		Blocks: []*analyst.Block{analyst.NewToolUseBlock(0, "", analyst.ToolGetTickerDetails)},
	})

	_, err = p.StreamResponse(context.Background(), req)
	require.Error(t, err)
	assert.False(t, analyst.IsTransportError(err))
	var transportErr *analyst.TransportError
	assert.False(t, errors.As(err, &transportErr))
	assert.Zero(t, hits)
}
