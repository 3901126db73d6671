package model

import "time"

// RunMode selects how many candidates a batch considers.
type RunMode string

const (
	ModeSamples RunMode = "samples"
	ModeFull    RunMode = "full"
)

// EventBudgetExceeded is the terminal event recorded when the token/cost
// ceiling is reached. It is not an error: in-flight items still finish.
const EventBudgetExceeded = "BudgetExceeded"

// RunEvent is one structured log entry attached to a run.
type RunEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Context   string         `json:"context"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewRunEvent builds an event stamped with the current UTC time.
func NewRunEvent(level, context, message string, data map[string]any) RunEvent {
	return RunEvent{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Context:   context,
		Message:   message,
		Data:      data,
	}
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	ID           string     `json:"id"`
	Mode         RunMode    `json:"mode"`
	Offline      bool       `json:"offline"`
	Processed    int        `json:"processed"`
	Enriched     int        `json:"enriched"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	TokensUsed   int64      `json:"tokens_used"`
	CostEstimate float64    `json:"cost_estimate"`
	Events       []RunEvent `json:"events,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}
