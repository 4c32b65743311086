package analyst

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

//go:embed prompts/analysis.tmpl
var analysisTemplateText string

var analysisTemplate = template.Must(template.New("analysis").Funcs(template.FuncMap{
	"json":  promptJSON,
	"money": promptMoney,
}).Parse(analysisTemplateText))

// Holding is one open position shown to the model as portfolio context.
type Holding struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avgPrice"`
}

// Subject is what one analysis is about.
type Subject struct {
	// Ticker is the stock symbol (e.g., "AAPL")
	Ticker string

	// Budget is the capital available for this trade
	Budget float64

	// Portfolio lists the caller's open positions
	Portfolio []Holding

	// Date is the reference day; zero means today
	Date time.Time
}

// Normalize upper-cases the ticker and rejects an empty one.
func (s Subject) Normalize() (Subject, error) {
	s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
	if s.Ticker == "" {
		return s, &ValidationError{Field: "ticker", Value: s.Ticker, Reason: "ticker is required", Err: ErrInvalidRequest}
	}
	if s.Budget < 0 {
		return s, &ValidationError{Field: "budget", Value: s.Budget, Reason: "must not be negative", Err: ErrInvalidRequest}
	}
	return s, nil
}

// SeedPrompt is the single user turn that opens an analysis.
func (s Subject) SeedPrompt() string {
	return "Analyze " + s.Ticker
}

type promptData struct {
	Subject
	HistoryDays int
	MaxTokens   int
}

// RenderSystemPrompt renders the analyst instructions for a subject.
func RenderSystemPrompt(s Subject, historyDays, maxTokens int) (string, error) {
	if s.Date.IsZero() {
		s.Date = time.Now()
	}
	if s.Portfolio == nil {
		s.Portfolio = []Holding{}
	}
	var buf bytes.Buffer
	if err := analysisTemplate.Execute(&buf, promptData{Subject: s, HistoryDays: historyDays, MaxTokens: maxTokens}); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}

func promptJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func promptMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
