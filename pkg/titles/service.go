// Package titles generates conversation titles in the background: a
// priority queue drained by a small worker pool, with progress pushed to
// subscribers through the events broker.
package titles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quorumlabs/council/pkg/config"
	"github.com/quorumlabs/council/pkg/events"
	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
)

// fallbackTitleRunes caps the fallback title taken from the user message.
const fallbackTitleRunes = 40

const titleSystemPrompt = `You generate short conversation titles. Reply with a title of at most 5 words. No quotes, no trailing punctuation, no boilerplate like "New Conversation" or "Untitled". Reply with the title only.`

// Store is the persistence surface the title service needs.
type Store interface {
	ListActive() ([]*models.Conversation, error)
	UpdateTitle(id, title string) error
}

// Service is the background title generator.
type Service struct {
	client   llm.Client
	store    Store
	broker   *events.Broker
	cfg      config.TitleConfig
	chairman string

	queue    *jobQueue
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewService creates the title service. The chairman model does the
// generating, as everywhere else.
func NewService(client llm.Client, store Store, broker *events.Broker, cfg *config.Config) *Service {
	return &Service{
		client:   client,
		store:    store,
		broker:   broker,
		cfg:      cfg.Titles,
		chairman: cfg.Models.Chairman.Name,
		queue:    newJobQueue(),
	}
}

// Start spawns the worker pool. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	if s.started || !s.cfg.TitlesEnabled() {
		return
	}
	s.started = true

	workers := s.cfg.MaxConcurrent
	slog.Info("Starting title workers", "count", workers)
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run(ctx, fmt.Sprintf("title-worker-%d", i))
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { s.queue.close() })
	s.wg.Wait()
}

// RequestImmediate enqueues a high-priority job. A no-op when a job for the
// conversation is already queued or generating.
func (s *Service) RequestImmediate(conversationID, userMessage string) {
	s.request(conversationID, userMessage, models.PriorityImmediate)
}

// RequestBackground enqueues a low-priority job (used by the startup rescan).
func (s *Service) RequestBackground(conversationID, userMessage string) {
	s.request(conversationID, userMessage, models.PriorityBackground)
}

func (s *Service) request(conversationID, userMessage string, priority models.TitlePriority) {
	if !s.cfg.TitlesEnabled() {
		return
	}
	job := &models.TitleJob{
		ConversationID: conversationID,
		UserMessage:    userMessage,
		Priority:       priority,
	}
	if s.queue.enqueue(job) {
		s.publish(conversationID, models.TitleStatusQueued, "")
	}
}

// Rescan enqueues a background job for every conversation whose title still
// matches the placeholder form and which has at least one message. Called
// at startup — title jobs are not persisted across restarts.
func (s *Service) Rescan(_ context.Context) {
	if !s.cfg.TitlesEnabled() {
		return
	}
	convs, err := s.store.ListActive()
	if err != nil {
		slog.Error("Title rescan failed to list conversations", "error", err)
		return
	}
	rescanned := 0
	for _, conv := range convs {
		if !models.IsGenericTitle(conv.Title) || len(conv.Messages) == 0 {
			continue
		}
		firstUser := ""
		for _, m := range conv.Messages {
			if m.Role == models.RoleUser {
				firstUser = m.Content
				break
			}
		}
		if firstUser == "" {
			continue
		}
		s.RequestBackground(conv.ID, firstUser)
		rescanned++
	}
	if rescanned > 0 {
		slog.Info("Re-enqueued conversations with placeholder titles", "count", rescanned)
	}
}

// run is a single worker loop.
func (s *Service) run(ctx context.Context, workerID string) {
	defer s.wg.Done()
	log := slog.With("worker_id", workerID)
	log.Info("Title worker started")

	for {
		job, ok := s.queue.pop()
		if !ok {
			log.Info("Title worker shutting down")
			return
		}
		s.process(ctx, job)
	}
}

// process drives one job through its status machine, retrying transient
// failures with exponential backoff. Terminal failure keeps the placeholder
// title; errors never propagate outside the service.
func (s *Service) process(ctx context.Context, job *models.TitleJob) {
	defer s.queue.finish(job.ConversationID)
	log := slog.With("conversation_id", job.ConversationID)

	s.publish(job.ConversationID, models.TitleStatusGenerating, "")

	var title string
	operation := func() error {
		job.Attempts++
		t, err := s.generateOnce(ctx, job)
		if err != nil {
			var lerr *llm.Error
			if errors.As(err, &lerr) && lerr.Kind == llm.KindCancelled {
				return backoff.Permanent(err)
			}
			log.Warn("Title generation attempt failed", "attempt", job.Attempts, "error", err)
			return err
		}
		title = t
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.RetryAttempts)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		job.Status = models.TitleStatusError
		log.Error("Title generation failed permanently", "attempts", job.Attempts, "error", err)
		s.publish(job.ConversationID, models.TitleStatusError, err.Error())
		return
	}

	if err := s.store.UpdateTitle(job.ConversationID, title); err != nil {
		job.Status = models.TitleStatusError
		log.Error("Failed to persist generated title", "error", err)
		s.publish(job.ConversationID, models.TitleStatusError, err.Error())
		return
	}

	job.Status = models.TitleStatusComplete
	log.Info("Title generated", "title", title)
	s.publish(job.ConversationID, models.TitleStatusComplete, title)
}

// generateOnce runs one completion for the job and extracts a title.
// Thinking-capable chairmen stream so thinking progress can be pushed.
func (s *Service) generateOnce(ctx context.Context, job *models.TitleJob) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: titleSystemPrompt},
		{Role: llm.RoleUser, Content: "Generate a title for a conversation that starts with this message:\n\n" + job.UserMessage},
	}
	opts := llm.Options{Timeout: s.cfg.Timeout()}

	var resp *llm.Response
	if s.isThinkingModel() {
		chunks, err := s.client.CompleteStream(ctx, s.chairman, messages, opts)
		if err != nil {
			return "", err
		}
		resp = &llm.Response{}
		for chunk := range chunks {
			switch c := chunk.(type) {
			case llm.ThinkingChunk:
				job.Status = models.TitleStatusThinking
				s.publish(job.ConversationID, models.TitleStatusThinking, c.Content)
			case llm.ContentChunk:
				resp.Content += c.Content
			case llm.DoneChunk:
				resp.Content = c.Content
				resp.Thinking = c.Thinking
			case llm.ErrorChunk:
				return "", c.Err
			}
		}
	} else {
		var err error
		resp, err = s.client.Complete(ctx, s.chairman, messages, opts)
		if err != nil {
			return "", err
		}
	}

	return ExtractTitle(resp.Content, job.UserMessage), nil
}

// isThinkingModel reports whether the chairman's id matches one of the
// configured reasoning-hint substrings (case-insensitive).
func (s *Service) isThinkingModel() bool {
	name := strings.ToLower(s.chairman)
	for _, hint := range s.cfg.ThinkingModelHints {
		if hint != "" && strings.Contains(name, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

func (s *Service) publish(conversationID string, status models.TitleStatus, data string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.TitleEvent{
		ConversationID: conversationID,
		Status:         status,
		Data:           data,
	})
}

// ExtractTitle cleans a model response into a usable title: thinking
// stripped, surrounding quotes trimmed, whitespace collapsed. Empty or
// generic results fall back to the first characters of the user message,
// with an ellipsis when truncated.
func ExtractTitle(raw, userMessage string) string {
	content, _ := llm.StripThinking(raw)
	title := strings.TrimSpace(content)
	// Models love to quote their own titles.
	title = strings.Trim(title, "\"'“”‘’")
	title = strings.Join(strings.Fields(title), " ")

	if title == "" || models.IsGenericTitle(title) || strings.EqualFold(title, "untitled") {
		return fallbackTitle(userMessage)
	}
	return title
}

func fallbackTitle(userMessage string) string {
	msg := strings.Join(strings.Fields(userMessage), " ")
	runes := []rune(msg)
	if len(runes) <= fallbackTitleRunes {
		return msg
	}
	return string(runes[:fallbackTitleRunes]) + "…"
}
