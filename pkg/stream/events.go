// Package stream merges concurrent per-model token streams into a single
// ordered event channel with a stable envelope schema.
package stream

import (
	"time"

	"github.com/quorumlabs/council/pkg/models"
)

// EventType identifies a deliberation stream event.
type EventType string

// Stage 1 events.
const (
	EventStage1Start         EventType = "stage1_start"
	EventStage1Token         EventType = "stage1_token"
	EventStage1ModelComplete EventType = "stage1_model_complete"
	EventStage1Complete      EventType = "stage1_complete"
)

// Stage 2 events.
const (
	EventStage2RoundStart      EventType = "stage2_round_start"
	EventStage2Token           EventType = "stage2_token"
	EventStage2ModelComplete   EventType = "stage2_model_complete"
	EventStage2RefinementStart EventType = "stage2_refinement_start"
	EventStage2RefinementToken EventType = "stage2_refinement_token"
	EventStage2RoundComplete   EventType = "stage2_round_complete"
	EventStage2Complete        EventType = "stage2_complete"
)

// Stage 3 and terminal events.
const (
	EventStage3Start    EventType = "stage3_start"
	EventStage3Token    EventType = "stage3_token"
	EventStage3Complete EventType = "stage3_complete"

	// EventError is fatal and terminates the stream.
	EventError EventType = "error"
)

// Event is the envelope delivered to the single consumer of a request's
// event channel.
//
// Ordering guarantees: a stage's start event precedes any of its tokens,
// its complete event is the stage's last event, and tokens of one model
// arrive in emission order. No cross-model token ordering is guaranteed.
type Event struct {
	Type      EventType `json:"type"`
	Stage     int       `json:"stage"`
	Model     string    `json:"model,omitempty"`
	Round     int       `json:"round,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenData is the payload of token events.
type TokenData struct {
	Delta string `json:"delta"`
	// Thinking marks reasoning-text deltas.
	Thinking bool `json:"thinking,omitempty"`
	// TokensPerSecond is the live throughput of the producing model.
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
}

// ModelCompleteData is the payload of per-model completion events.
type ModelCompleteData struct {
	Metrics   models.ModelMetrics `json:"metrics"`
	ErrorKind models.ErrorKind    `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// RoundStartData is the payload of stage2_round_start.
type RoundStartData struct {
	Round     int `json:"round"`
	MaxRounds int `json:"max_rounds"`
}

// RoundCompleteData is the payload of stage2_round_complete.
type RoundCompleteData struct {
	Round     int                     `json:"round"`
	Refined   bool                    `json:"refined"`
	NextRound bool                    `json:"next_round"`
	Aggregate []models.AggregateEntry `json:"aggregate"`
}

// Stage2CompleteData is the payload of stage2_complete.
type Stage2CompleteData struct {
	Rounds    int                     `json:"rounds"`
	Aggregate []models.AggregateEntry `json:"aggregate"`
}

// Stage3CompleteData is the payload of stage3_complete.
type Stage3CompleteData struct {
	Content string `json:"content"`
}

// ErrorData is the payload of the terminal error event.
type ErrorData struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}
