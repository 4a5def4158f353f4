package models

// ErrorKind tags a per-model or request-level failure recorded in the trace.
type ErrorKind string

// Error kinds recorded in deliberation traces.
const (
	ErrKindUnreachableEndpoint ErrorKind = "unreachable_endpoint"
	ErrKindModelNotLoaded      ErrorKind = "model_not_loaded"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindProtocolError       ErrorKind = "protocol_error"
	ErrKindUnparseable         ErrorKind = "unparseable"
	ErrKindInsufficientCouncil ErrorKind = "insufficient_council"
	ErrKindCancelled           ErrorKind = "cancelled"
	ErrKindNotFound            ErrorKind = "not_found"
)

// ModelMetrics holds per-model timing derived from the token tracker.
// Token counts are whitespace-separated word counts (a deliberate proxy,
// consistent between live stream events and the persisted record).
type ModelMetrics struct {
	ThinkingSeconds float64 `json:"thinking_seconds"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	ContentTokens   int     `json:"content_tokens"`
}

// Draft is one council model's response in Stage 1 (or its refined
// replacement from a refinement sub-round).
type Draft struct {
	Model     string       `json:"model"`
	Content   string       `json:"content"`
	Thinking  string       `json:"thinking,omitempty"`
	Metrics   ModelMetrics `json:"metrics"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`
	Refined   bool         `json:"refined,omitempty"`
}

// RankedLabel is one entry of a parsed ranking: an anonymized label and an
// optional quality score out of 5.
type RankedLabel struct {
	Label string   `json:"label"`
	Model string   `json:"model,omitempty"` // de-anonymized before persistence
	Score *float64 `json:"score,omitempty"`
}

// Ranking is one ranker's output for one round.
type Ranking struct {
	Ranker    string        `json:"ranker"`
	RawText   string        `json:"raw_text"`
	Thinking  string        `json:"thinking,omitempty"`
	Entries   []RankedLabel `json:"entries"`
	Warnings  []string      `json:"warnings,omitempty"`
	Metrics   ModelMetrics  `json:"metrics"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// AggregateEntry is one model's position in the merged ranking.
type AggregateEntry struct {
	Label        string   `json:"label"`
	Model        string   `json:"model"`
	MeanPosition float64  `json:"mean_position"`
	MeanScore    *float64 `json:"mean_score,omitempty"`
	Rankers      int      `json:"rankers"`
}

// Round captures one Stage-2 round: per-ranker rankings, the merged order,
// and whether a refinement sub-round followed.
type Round struct {
	Round     int              `json:"round"`
	Rankings  []Ranking        `json:"rankings"`
	Aggregate []AggregateEntry `json:"aggregate"`
	Refined   bool             `json:"refined"`
}

// Synthesis is the chairman's Stage-3 output.
type Synthesis struct {
	Model    string       `json:"model"`
	Content  string       `json:"content"`
	Thinking string       `json:"thinking,omitempty"`
	Metrics  ModelMetrics `json:"metrics"`
}

// DeliberationRecord is the full trace of a single deliberation: Stage-1
// drafts, Stage-2 rounds, the final aggregate ranking, and the synthesis.
// Built in memory by the controller and attached atomically to the
// assistant message when the request completes.
type DeliberationRecord struct {
	RequestID string           `json:"request_id"`
	Drafts    []Draft          `json:"drafts"`
	Rounds    []Round          `json:"rounds,omitempty"`
	Aggregate []AggregateEntry `json:"aggregate,omitempty"`
	Synthesis *Synthesis       `json:"synthesis,omitempty"`
	Cancelled bool             `json:"cancelled,omitempty"`
}
