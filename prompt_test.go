package analyst

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject_Normalize(t *testing.T) {
	s, err := Subject{Ticker: "  tsla ", Budget: 500}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "TSLA", s.Ticker)
	assert.Equal(t, "Analyze TSLA", s.SeedPrompt())

	_, err = Subject{Ticker: "   "}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Subject{Ticker: "AAPL", Budget: -1}.Normalize()
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "budget", validationErr.Field)
}

func TestRenderSystemPrompt(t *testing.T) {
	prompt, err := RenderSystemPrompt(Subject{
		Ticker:    "NVDA",
		Budget:    1500.5,
		Portfolio: []Holding{{Ticker: "AAPL", Quantity: 15, AvgPrice: 150}},
		Date:      time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC),
	}, 30, 64000)
	require.NoError(t, err)

	assert.Contains(t, prompt, "**NVDA**")
	assert.Contains(t, prompt, "$1500.5")
	assert.Contains(t, prompt, `[{"ticker":"AAPL","quantity":15,"avgPrice":150}]`)
	assert.Contains(t, prompt, "**Today:** 2025-10-01")
	assert.Contains(t, prompt, "last 30 days")
	assert.Contains(t, prompt, "STAY WITHIN 64000 TOKENS")
	assert.Contains(t, prompt, "# IN-DEPTH ANALYSIS: NVDA")
}

func TestRenderSystemPrompt_Defaults(t *testing.T) {
	prompt, err := RenderSystemPrompt(Subject{Ticker: "AMD"}, 10, 1000)
	require.NoError(t, err)

	assert.Contains(t, prompt, "**Current portfolio:** []")
	assert.Contains(t, prompt, "**Today:** "+time.Now().Format("2006-01-02"))
}
