package deliberation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
	"github.com/quorumlabs/council/pkg/stream"
)

// State is a phase of the deliberation state machine:
//
//	IDLE → STAGE1 → STAGE2_ROUND(r) ⇄ REFINE(r) → … → STAGE3 → DONE
//
// with early stop from any round that triggers no refinement, and FAILED
// reachable from every state on an unrecoverable error.
type State string

// Deliberation states.
const (
	StateIdle   State = "idle"
	StateStage1 State = "stage1"
	StateStage2 State = "stage2"
	StateStage3 State = "stage3"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Store is the persistence surface the controller needs.
type Store interface {
	Get(id string) (*models.Conversation, error)
	AppendMessage(id string, msg models.Message) error
}

// TitleRequester enqueues an immediate title-generation job. Implemented by
// the title service; nil disables title generation.
type TitleRequester interface {
	RequestImmediate(conversationID, userMessage string)
}

// Controller is the top-level state machine for one-request deliberations.
// It owns the DeliberationRecord being built (single writer) and the event
// channel handed to the caller.
type Controller struct {
	store   Store
	runner  *Runner
	titles  TitleRequester
	tracker *llm.TokenTracker
}

// NewController creates a deliberation controller. titles may be nil.
func NewController(store Store, runner *Runner, titles TitleRequester, tracker *llm.TokenTracker) *Controller {
	return &Controller{store: store, runner: runner, titles: titles, tracker: tracker}
}

// Run executes a full deliberation for one user message. The mux is closed
// before Run returns; on fatal failure a single error event is emitted
// first. The assistant message (with its full trace) is appended to the
// conversation on success and on cancellation — a cancelled trace keeps the
// results of the model calls that finished before the cancellation and is
// tagged Cancelled; a stage-1 draft whose call failed is recorded with its
// error tag and no content.
func (c *Controller) Run(ctx context.Context, conversationID, content string, mux *stream.Mux) (*models.Message, error) {
	defer mux.Close()

	requestID := uuid.New().String()
	defer c.tracker.Forget(requestID)
	log := slog.With("request_id", requestID, "conversation_id", conversationID)

	conv, err := c.store.Get(conversationID)
	if err != nil {
		c.emitError(ctx, mux, models.ErrKindNotFound, err)
		return nil, err
	}
	firstUserMessage := conv.UserMessageCount() == 0
	history := conv.Messages

	userMsg := models.Message{Role: models.RoleUser, Content: content, CreatedAt: time.Now().UTC()}
	if err := c.store.AppendMessage(conversationID, userMsg); err != nil {
		c.emitError(ctx, mux, models.ErrKindProtocolError, err)
		return nil, err
	}

	log.Info("Deliberation started", "state", StateStage1)
	record := &models.DeliberationRecord{RequestID: requestID}

	drafts, err := c.runner.RunStage1(ctx, requestID, mux, history, content)
	record.Drafts = drafts
	if err != nil {
		return nil, c.fail(ctx, mux, log, conversationID, record, err)
	}

	log.Info("Deliberation advanced", "state", StateStage2)
	stage2, err := c.runner.RunStage2(ctx, requestID, mux, content, drafts)
	if stage2 != nil {
		record.Rounds = stage2.Rounds
		record.Aggregate = stage2.Aggregate
	}
	if err != nil {
		return nil, c.fail(ctx, mux, log, conversationID, record, err)
	}

	log.Info("Deliberation advanced", "state", StateStage3)
	synthesis, err := c.runner.RunStage3(ctx, requestID, mux, content, stage2.Drafts, stage2.Aggregate)
	if synthesis != nil {
		record.Synthesis = synthesis
	}
	if err != nil {
		return nil, c.fail(ctx, mux, log, conversationID, record, err)
	}

	assistant := models.Message{
		Role:         models.RoleAssistant,
		Content:      synthesis.Content,
		CreatedAt:    time.Now().UTC(),
		Deliberation: record,
	}
	if err := c.store.AppendMessage(conversationID, assistant); err != nil {
		c.emitError(ctx, mux, models.ErrKindProtocolError, err)
		return nil, err
	}

	log.Info("Deliberation complete", "state", StateDone, "rounds", len(record.Rounds))

	if c.titles != nil && firstUserMessage && models.IsGenericTitle(conv.Title) {
		c.titles.RequestImmediate(conversationID, content)
	}
	return &assistant, nil
}

// fail handles a fatal request error: cancellation persists the partial
// trace with a Cancelled tag (and enqueues no title job); every other
// failure emits the terminal error event.
func (c *Controller) fail(
	ctx context.Context,
	mux *stream.Mux,
	log *slog.Logger,
	conversationID string,
	record *models.DeliberationRecord,
	err error,
) error {
	if errors.Is(err, context.Canceled) {
		record.Cancelled = true
		assistant := models.Message{
			Role:         models.RoleAssistant,
			Content:      "",
			CreatedAt:    time.Now().UTC(),
			Deliberation: record,
		}
		if storeErr := c.store.AppendMessage(conversationID, assistant); storeErr != nil {
			log.Error("Failed to persist cancelled trace", "error", storeErr)
		}
		log.Info("Deliberation cancelled")
		return err
	}

	log.Error("Deliberation failed", "state", StateFailed, "error", err)
	c.emitError(ctx, mux, errorKindOf(err), err)
	return err
}

func (c *Controller) emitError(ctx context.Context, mux *stream.Mux, kind models.ErrorKind, err error) {
	// Use a background-derived timeout so the terminal event can still go
	// out when the request context is already done.
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = mux.Emit(emitCtx, stream.Event{
		Type: stream.EventError,
		Data: stream.ErrorData{Kind: kind, Message: err.Error()},
	})
}

func errorKindOf(err error) models.ErrorKind {
	var lerr *llm.Error
	switch {
	case errors.Is(err, ErrInsufficientCouncil):
		return models.ErrKindInsufficientCouncil
	case errors.As(err, &lerr):
		return lerr.TraceKind()
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return models.ErrKindCancelled
	default:
		return models.ErrKindProtocolError
	}
}
