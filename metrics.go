package analyst

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the loop and executor.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Turns counts endpoint calls by stop reason
	Turns *prometheus.CounterVec

	// ToolCalls counts tool invocations by tool name and outcome (ok, error)
	ToolCalls *prometheus.CounterVec

	// Analyses counts finished runs by outcome (final, truncated, transport_error, turn_budget_exceeded)
	Analyses *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_turns_total",
				Help: "Endpoint calls made by the orchestration loop, by stop reason",
			},
			[]string{"stop_reason"},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_tool_calls_total",
				Help: "Tool invocations executed, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_analyses_total",
				Help: "Completed analyses, by outcome",
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.Turns, m.ToolCalls, m.Analyses} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordTurn(reason StopReason) {
	if m == nil {
		return
	}
	label := string(reason)
	if label == "" {
		label = "unknown"
	}
	m.Turns.WithLabelValues(label).Inc()
}

func (m *Metrics) recordToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) recordAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(outcome).Inc()
}
