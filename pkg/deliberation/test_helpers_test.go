package deliberation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/quorumlabs/council/pkg/config"
	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
	"github.com/quorumlabs/council/pkg/stream"
)

// fakeBehavior scripts one model call. When rank is set, the response text
// is computed from the labels found in the prompt, so scripted rankings
// survive the per-request label shuffle.
type fakeBehavior struct {
	delay    time.Duration
	content  string
	thinking string
	err      *llm.Error
	rank     func(labels []string) string
}

// fakeClient pops scripted behaviors per model in call order and records
// every prompt it was sent.
type fakeClient struct {
	mu        sync.Mutex
	behaviors map[string][]fakeBehavior
	calls     map[string][][]llm.Message
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		behaviors: make(map[string][]fakeBehavior),
		calls:     make(map[string][][]llm.Message),
	}
}

func (f *fakeClient) on(model string, behaviors ...fakeBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[model] = append(f.behaviors[model], behaviors...)
}

func (f *fakeClient) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[model])
}

func (f *fakeClient) lastPrompt(model string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[model]
	if len(calls) == 0 {
		return ""
	}
	last := calls[len(calls)-1]
	return last[len(last)-1].Content
}

func (f *fakeClient) next(model string, messages []llm.Message) fakeBehavior {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[model] = append(f.calls[model], messages)
	queue := f.behaviors[model]
	if len(queue) == 0 {
		return fakeBehavior{content: "ok"}
	}
	b := queue[0]
	f.behaviors[model] = queue[1:]
	return b
}

func (f *fakeClient) Complete(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	chunks, err := f.CompleteStream(ctx, model, messages, opts)
	if err != nil {
		return nil, err
	}
	resp := &llm.Response{}
	for chunk := range chunks {
		switch c := chunk.(type) {
		case llm.DoneChunk:
			resp.Content = c.Content
			resp.Thinking = c.Thinking
		case llm.ErrorChunk:
			return nil, c.Err
		}
	}
	return resp, nil
}

func (f *fakeClient) CompleteStream(ctx context.Context, model string, messages []llm.Message, _ llm.Options) (<-chan llm.Chunk, error) {
	b := f.next(model, messages)
	ch := make(chan llm.Chunk, 64)

	go func() {
		defer close(ch)

		if b.delay > 0 {
			select {
			case <-time.After(b.delay):
			case <-ctx.Done():
				ch <- llm.ErrorChunk{Err: &llm.Error{Kind: llm.KindCancelled, Model: model, Err: ctx.Err()}}
				return
			}
		}
		if b.err != nil {
			ch <- llm.ErrorChunk{Err: b.err}
			return
		}

		content := b.content
		if b.rank != nil {
			content = b.rank(labelsFromPrompt(messages))
		}

		if b.thinking != "" {
			ch <- llm.ThinkingChunk{Content: b.thinking}
		}
		for _, word := range strings.Split(content, " ") {
			select {
			case ch <- llm.ContentChunk{Content: word + " "}:
			case <-ctx.Done():
				ch <- llm.ErrorChunk{Err: &llm.Error{Kind: llm.KindCancelled, Model: model, Err: ctx.Err()}}
				return
			}
		}
		ch <- llm.DoneChunk{Content: content, Thinking: b.thinking}
	}()

	return ch, nil
}

var promptLabelPattern = regexp.MustCompile(`--- Response ([A-Z]) ---`)

// labelsFromPrompt extracts the anonymized labels a ranker was shown.
func labelsFromPrompt(messages []llm.Message) []string {
	var labels []string
	for _, m := range messages {
		for _, match := range promptLabelPattern.FindAllStringSubmatch(m.Content, -1) {
			labels = append(labels, match[1])
		}
	}
	return labels
}

// rankAlphabetical ranks the visible labels in alphabetical order with the
// given scores (cycled when shorter than the label list).
func rankAlphabetical(scores ...float64) func(labels []string) string {
	return func(labels []string) string {
		sorted := append([]string(nil), labels...)
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			}
		}
		var sb strings.Builder
		sb.WriteString("FINAL RANKING:\n")
		for i, l := range sorted {
			s := scores[i%len(scores)]
			fmt.Fprintf(&sb, "%d. Response %s (%s/5)\n", i+1, l, trimFloat(s))
		}
		return sb.String()
	}
}

func testConfig(council []string, chairman string, rounds int, crossReview bool) *config.Config {
	members := make([]config.ModelRef, len(council))
	for i, m := range council {
		members[i] = config.ModelRef{Name: m}
	}
	cr := crossReview
	return &config.Config{
		Models: config.ModelsConfig{
			Chairman:       config.ModelRef{Name: chairman},
			CouncilMembers: members,
		},
		Deliberation: config.DeliberationConfig{
			Rounds:                  rounds,
			MaxRounds:               config.DefaultMaxRounds,
			EnableCrossReview:       &cr,
			QualityThreshold:        config.DefaultQualityThreshold,
			StageTimeoutSeconds:     10,
			SynthesisTimeoutSeconds: 10,
		},
		Titles: config.TitleConfig{
			MaxConcurrent:      1,
			TimeoutSeconds:     5,
			RetryAttempts:      0,
			ThinkingModelHints: config.DefaultThinkingModelHints(),
		},
		Server: config.ServerConfig{HTTPPort: 8080, DataDir: ".", EventBuffer: 256},
	}
}

// collectEvents drains a mux in the background and delivers the full event
// list once the mux closes.
func collectEvents(mux *stream.Mux) <-chan []stream.Event {
	out := make(chan []stream.Event, 1)
	go func() {
		var events []stream.Event
		for ev := range mux.Events() {
			events = append(events, ev)
		}
		out <- events
	}()
	return out
}

func eventTypes(events []stream.Event) []stream.EventType {
	types := make([]stream.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func countType(events []stream.Event, t stream.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// memStore is an in-memory Store for controller tests.
type memStore struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*models.Conversation)}
}

func (s *memStore) add(conv *models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = conv
}

func (s *memStore) Get(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	clone := *conv
	clone.Messages = append([]models.Message(nil), conv.Messages...)
	return &clone, nil
}

func (s *memStore) AppendMessage(id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

func (s *memStore) messages(id string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.convs[id].Messages...)
}

// fakeTitleRequester records immediate title requests.
type fakeTitleRequester struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeTitleRequester) RequestImmediate(conversationID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, conversationID)
}

func (f *fakeTitleRequester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
