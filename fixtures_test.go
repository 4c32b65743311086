package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// Stream payload builders shared by the decoder, accumulator and loop tests.

func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func evMessageStart(model string) string {
	return fmt.Sprintf(`{"type":"message_start","message":{"id":"msg_1","role":"assistant","model":%s}}`, jsonString(model))
}

func evTextStart(idx int) string {
	return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, idx)
}

func evToolStart(idx int, id, name string) string {
	return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":%s,"name":%s,"input":{}}}`,
		idx, jsonString(id), jsonString(name))
}

func evTextDelta(idx int, text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`, idx, jsonString(text))
}

func evInputDelta(idx int, partial string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`,
		idx, jsonString(partial))
}

func evBlockStop(idx int) string {
	return fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, idx)
}

func evMessageDelta(stopReason string, outputTokens int) string {
	return fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%s},"usage":{"input_tokens":10,"output_tokens":%d}}`,
		jsonString(stopReason), outputTokens)
}

const evMessageStop = `{"type":"message_stop"}`

// sseBody frames payloads the way the endpoint does, with event lines and a
// trailing done sentinel.
func sseBody(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(p), &head)
		if head.Type != "" {
			sb.WriteString("event: " + head.Type + "\n")
		}
		sb.WriteString("data: " + p + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// textTurn is a complete turn holding one text block.
func textTurn(text, stopReason string) string {
	return sseBody(
		evMessageStart("claude-sonnet-4-5-20250929"),
		evTextStart(0),
		evTextDelta(0, text),
		evBlockStop(0),
		evMessageDelta(stopReason, 20),
		evMessageStop,
	)
}

// toolTurn is a complete turn with an intro text block followed by one
// tool_use block per name, each asking for ticker.
func toolTurn(ticker string, names ...string) string {
	payloads := []string{
		evMessageStart("claude-sonnet-4-5-20250929"),
		evTextStart(0),
		evTextDelta(0, "Let me gather data."),
		evBlockStop(0),
	}
	for i, name := range names {
		idx := i + 1
		payloads = append(payloads,
			evToolStart(idx, fmt.Sprintf("toolu_%d", idx), name),
			evInputDelta(idx, `{"ticker":`),
			evInputDelta(idx, jsonString(ticker)+`}`),
			evBlockStop(idx),
		)
	}
	payloads = append(payloads, evMessageDelta("tool_use", 30), evMessageStop)
	return sseBody(payloads...)
}

// chunkedReader returns data in pieces whose sizes cycle through sizes.
type chunkedReader struct {
	data  []byte
	sizes []int
	i     int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := len(r.data)
	if len(r.sizes) > 0 {
		n = r.sizes[r.i%len(r.sizes)]
		r.i++
	}
	n = min(n, len(r.data), len(p))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// fakeMarket serves canned payloads and records the tickers it was asked for.
type fakeMarket struct {
	mu      sync.Mutex
	tickers []string

	snapshot []byte
	history  []byte
	details  []byte
	err      error

	// hook runs before every call when set
	hook func(method string)
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		snapshot: []byte(`{"symbol":"AAPL","name":"Apple Inc.","price":187.44,"changesPercentage":1.12,"change":2.07,"dayLow":184.9,"dayHigh":188.1,"marketCap":2900000000000,"volume":51234000,"pe":29.1,"eps":6.44,"exchange":"NASDAQ"}`),
		history:  []byte(`[{"date":"2025-10-01","open":183.1,"high":186,"low":182.7,"close":185.4,"volume":48000000,"vwap":184.2},{"date":"2025-09-30","open":181.9,"high":183.5,"low":180.2,"close":183,"volume":45500000,"vwap":182.1},{"date":"2025-09-29","open":180,"high":182.4,"low":179.6,"close":181.8,"volume":43100000,"vwap":181}]`),
		details:  []byte(`{"symbol":"AAPL","companyName":"Apple Inc.","sector":"Technology","industry":"Consumer Electronics","exchange":"NASDAQ","ceo":"Tim Cook","website":"https://www.apple.com","description":"Apple designs smartphones.","isin":"US0378331005"}`),
	}
}

func (m *fakeMarket) record(method, ticker string) {
	m.mu.Lock()
	m.tickers = append(m.tickers, ticker)
	m.mu.Unlock()
	if m.hook != nil {
		m.hook(method)
	}
}

func (m *fakeMarket) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tickers...)
}

func (m *fakeMarket) RealtimeSnapshot(_ context.Context, ticker string) ([]byte, error) {
	m.record("snapshot", ticker)
	return m.snapshot, m.err
}

func (m *fakeMarket) HistoricalPrices(_ context.Context, ticker string, _ int) ([]byte, error) {
	m.record("history", ticker)
	return m.history, m.err
}

func (m *fakeMarket) TickerDetails(_ context.Context, ticker string) ([]byte, error) {
	m.record("details", ticker)
	return m.details, m.err
}

// scriptedProvider replays one canned stream body per turn.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    []string
	err      error
	body     func(turn int) io.Reader
	requests []*GenerateRequest
}

func (p *scriptedProvider) StreamResponse(_ context.Context, req *GenerateRequest) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	turn := len(p.requests)
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if p.body != nil {
		return io.NopCloser(p.body(turn)), nil
	}
	if len(p.turns) == 0 {
		return nil, errors.New("no scripted turns")
	}
	// The last scripted turn repeats.
	return io.NopCloser(strings.NewReader(p.turns[min(turn, len(p.turns)-1)])), nil
}

func (p *scriptedProvider) Name() ProviderID { return ProviderAnthropic }

func (p *scriptedProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// newCall builds a finalized invocation from raw input text.
func newCall(id, name, input string) *ToolUse {
	u := &ToolUse{ID: id, Name: name}
	u.AppendInput(input)
	_ = u.Finalize()
	return u
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return c
}
