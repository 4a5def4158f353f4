package llm

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/quorumlabs/council/pkg/models"
)

// minGenerationWindow floors the tokens/second denominator so a burst that
// arrives in one read doesn't report absurd rates.
const minGenerationWindow = 50 * time.Millisecond

// TokenTracker aggregates per-(request, model) timing and throughput.
//
// Token counts are whitespace-separated word counts, not tokenizer tokens.
// This is a deliberate proxy: the numbers are user-facing badges, and the
// same counting is used for live stream events and the persisted record so
// the two always agree.
type TokenTracker struct {
	mu   sync.Mutex
	recs map[trackerKey]*trackerRecord
}

type trackerKey struct {
	requestID string
	model     string
}

type trackerRecord struct {
	start        time.Time
	firstToken   time.Time
	firstContent time.Time
	end          time.Time

	contentTokens int
	// joinPending is true when the previous content delta ended mid-word, so
	// a delta that also starts mid-word continues the same word.
	joinPending bool
}

// NewTokenTracker creates an empty tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{recs: make(map[trackerKey]*trackerRecord)}
}

// Start records the request start for a model call.
func (t *TokenTracker) Start(requestID, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recs[trackerKey{requestID, model}] = &trackerRecord{start: time.Now()}
}

// RecordThinking marks the first-token timestamp if not yet set.
func (t *TokenTracker) RecordThinking(requestID, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.recs[trackerKey{requestID, model}]
	if rec == nil {
		return
	}
	if rec.firstToken.IsZero() {
		rec.firstToken = time.Now()
	}
}

// RecordContent counts a content delta and marks first-token and
// first-content timestamps as needed. Returns the updated content-token
// count and the live tokens/second.
func (t *TokenTracker) RecordContent(requestID, model, delta string) (tokens int, tps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.recs[trackerKey{requestID, model}]
	if rec == nil {
		return 0, 0
	}
	now := time.Now()
	if rec.firstToken.IsZero() {
		rec.firstToken = now
	}
	if rec.firstContent.IsZero() {
		rec.firstContent = now
	}

	words := len(strings.Fields(delta))
	if words > 0 {
		if rec.joinPending && !startsWithSpace(delta) {
			words--
		}
		rec.contentTokens += words
	}
	if delta != "" {
		rec.joinPending = !endsWithSpace(delta)
	}

	return rec.contentTokens, liveRate(rec, now)
}

// End records stream completion.
func (t *TokenTracker) End(requestID, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec := t.recs[trackerKey{requestID, model}]; rec != nil {
		rec.end = time.Now()
	}
}

// Metrics reports the derived quantities for a finished call. Zero-valued
// timestamps degrade gracefully (a call that produced no content reports
// zero tokens/second).
func (t *TokenTracker) Metrics(requestID, model string) models.ModelMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.recs[trackerKey{requestID, model}]
	if rec == nil {
		return models.ModelMetrics{}
	}

	m := models.ModelMetrics{ContentTokens: rec.contentTokens}
	end := rec.end
	if end.IsZero() {
		end = time.Now()
	}
	m.ElapsedSeconds = end.Sub(rec.start).Seconds()
	if !rec.firstContent.IsZero() {
		m.ThinkingSeconds = rec.firstContent.Sub(rec.start).Seconds()
		window := end.Sub(rec.firstContent)
		if window < minGenerationWindow {
			window = minGenerationWindow
		}
		m.TokensPerSecond = float64(rec.contentTokens) / window.Seconds()
	}
	return m
}

// Forget drops all records for a request once its trace is persisted.
// Stage-scoped keys derived from the request id ("<id>:rank1", …) are
// dropped too.
func (t *TokenTracker) Forget(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.recs {
		if k.requestID == requestID || strings.HasPrefix(k.requestID, requestID+":") {
			delete(t.recs, k)
		}
	}
}

func liveRate(rec *trackerRecord, now time.Time) float64 {
	if rec.firstContent.IsZero() || rec.contentTokens == 0 {
		return 0
	}
	window := now.Sub(rec.firstContent)
	if window < minGenerationWindow {
		window = minGenerationWindow
	}
	return float64(rec.contentTokens) / window.Seconds()
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func endsWithSpace(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	return unicode.IsSpace(runes[len(runes)-1])
}
