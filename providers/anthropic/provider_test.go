package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	analyst "github.com/haowjy/meridian-analyst-go"
)

const sseBody = "data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n" +
	"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":3}}\n" +
	"data: [DONE]\n"

func testRequest(t *testing.T) *analyst.GenerateRequest {
	t.Helper()
	catalog, err := analyst.DefaultCatalog()
	require.NoError(t, err)

	system := "be terse"
	return &analyst.GenerateRequest{
		Messages: analyst.NewConversation("Analyze AAPL").Messages(),
		Tools:    catalog.Definitions(),
		Params: analyst.RequestParams{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 64000,
			System:    &system,
		},
	}
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider("")
	assert.ErrorIs(t, err, analyst.ErrInvalidAPIKey)
}

func TestProvider_SupportsModel(t *testing.T) {
	p, err := NewProvider("sk-test")
	require.NoError(t, err)

	tests := []struct {
		model    string
		expected bool
	}{
		{"claude-sonnet-4-5-20250929", true},
		{"claude-3-haiku", true},
		{"lorem-fast", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.SupportsModel(tt.model))
		})
	}
}

func TestStreamResponse_SendsStreamedRequest(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, messagesPath, r.URL.Path)
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("content-type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	body, err := p.StreamResponse(context.Background(), testRequest(t))
	require.NoError(t, err)
	defer body.Close()

	msg, err := analyst.Accumulate(analyst.NewDecoder(body), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.FirstText())
	assert.Equal(t, analyst.StopReasonEndTurn, msg.StopReason)

	assert.Equal(t, "sk-test", gotHeader.Get("x-api-key"))
	assert.Equal(t, APIVersion, gotHeader.Get("anthropic-version"))
	assert.Equal(t, "application/json", gotHeader.Get("content-type"))

	parsed := gjson.ParseBytes(gotBody)
	assert.True(t, parsed.Get("stream").Bool())
	assert.Equal(t, "claude-sonnet-4-5-20250929", parsed.Get("model").String())
	assert.Equal(t, int64(64000), parsed.Get("max_tokens").Int())
	assert.Equal(t, "be terse", parsed.Get("system.0.text").String())
	assert.Equal(t, "user", parsed.Get("messages.0.role").String())
	assert.Equal(t, "Analyze AAPL", parsed.Get("messages.0.content.0.text").String())
	assert.Equal(t, int64(3), parsed.Get("tools.#").Int())
	assert.Equal(t, analyst.ToolGetRealtimeSnapshot, parsed.Get("tools.0.name").String())
	assert.Equal(t, "ticker", parsed.Get("tools.0.input_schema.required.0").String())
	assert.Equal(t, "string", parsed.Get("tools.0.input_schema.properties.ticker.type").String())
}

func TestStreamResponse_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	body, err := p.StreamResponse(context.Background(), testRequest(t))
	require.Error(t, err)
	assert.Nil(t, body)

	var transportErr *analyst.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusTooManyRequests, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "slow down")
	assert.True(t, analyst.IsTransportError(err))
	assert.False(t, analyst.IsAuthError(err))
}

func TestStreamResponse_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-bad", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.StreamResponse(context.Background(), testRequest(t))
	assert.True(t, analyst.IsAuthError(err))
}

func TestStreamResponse_NetworkFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(url))
	require.NoError(t, err)

	_, err = p.StreamResponse(context.Background(), testRequest(t))
	var transportErr *analyst.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
	assert.NotNil(t, transportErr.Err)
}

func TestBuildMessageParams_InvalidParams(t *testing.T) {
	req := testRequest(t)
	req.Params.MaxTokens = 0

	_, err := buildMessageParams(req)
	assert.ErrorIs(t, err, analyst.ErrInvalidRequest)
}

func TestConvertToAnthropicMessages_ToolRoundTrip(t *testing.T) {
	use := analyst.NewToolUseBlock(0, "t1", analyst.ToolGetRealtimeSnapshot)
	use.ToolUse.AppendInput(`{"ticker":"AAPL"}`)
	require.NoError(t, use.ToolUse.Finalize())

	broken := analyst.NewToolUseBlock(1, "t2", analyst.ToolGetTickerDetails)
	broken.ToolUse.AppendInput(`{"tick`)
	require.Error(t, broken.ToolUse.Finalize())

	conv := analyst.NewConversation("Analyze AAPL")
	conv.AppendAssistant(&analyst.AssistantMessage{Blocks: []*analyst.Block{use, broken}})
	require.NoError(t, conv.AppendToolResults([]analyst.ToolResult{
		{ToolUseID: "t1", Content: `{"price":1}`},
		{ToolUseID: "t2", Content: `{"error":"bad input"}`, IsError: true},
	}))

	params := testRequest(t)
	params.Messages = conv.Messages()
	body, err := buildRequestBody(params)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "assistant", parsed.Get("messages.1.role").String())
	assert.Equal(t, "t1", parsed.Get("messages.1.content.0.id").String())
	assert.Equal(t, "AAPL", parsed.Get("messages.1.content.0.input.ticker").String())
	assert.Equal(t, "{}", parsed.Get("messages.1.content.1.input").Raw)
	assert.Equal(t, "tool_result", parsed.Get("messages.2.content.0.type").String())
	assert.Equal(t, "t2", parsed.Get("messages.2.content.1.tool_use_id").String())
	assert.True(t, parsed.Get("messages.2.content.1.is_error").Bool())
}

func TestConvertToAnthropicMessages_RejectsUnknownRole(t *testing.T) {
	_, err := convertToAnthropicMessages([]analyst.Message{{Role: "system", Blocks: []*analyst.Block{analyst.NewTextBlock(0, "x")}}})
	assert.Error(t, err)
}
