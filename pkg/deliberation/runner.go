// Package deliberation implements the three-stage peer-review protocol:
// parallel drafting, anonymized cross-ranking with optional refinement,
// and chairman synthesis.
package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quorumlabs/council/pkg/config"
	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
	"github.com/quorumlabs/council/pkg/stream"
)

// Runner executes the individual stages of the deliberation state machine.
// All state flows through parameters and return values; the controller owns
// the trace being built.
type Runner struct {
	client  llm.Client
	tracker *llm.TokenTracker
	cfg     *config.Config
}

// NewRunner creates a stage runner.
func NewRunner(client llm.Client, tracker *llm.TokenTracker, cfg *config.Config) *Runner {
	return &Runner{client: client, tracker: tracker, cfg: cfg}
}

// streamModel runs one streaming completion and feeds deltas to the
// multiplexer as the given token event type. Returns the collected
// response (possibly partial) and the classified error, if any.
func (r *Runner) streamModel(
	ctx context.Context,
	requestID, model string,
	messages []llm.Message,
	opts llm.Options,
	mux *stream.Mux,
	tokenType stream.EventType,
	stage, round int,
) (*llm.Response, models.ModelMetrics, *llm.Error) {
	r.tracker.Start(requestID, model)

	chunks, err := r.client.CompleteStream(ctx, model, messages, opts)
	if err != nil {
		r.tracker.End(requestID, model)
		if lerr, ok := err.(*llm.Error); ok {
			return &llm.Response{}, r.tracker.Metrics(requestID, model), lerr
		}
		return &llm.Response{}, r.tracker.Metrics(requestID, model),
			&llm.Error{Kind: llm.KindProtocolError, Model: model, Err: err}
	}

	resp, lerr := collectStream(chunks, func(thinking bool, delta string) {
		var tps float64
		if thinking {
			r.tracker.RecordThinking(requestID, model)
		} else {
			_, tps = r.tracker.RecordContent(requestID, model, delta)
		}
		// Emit errors mean the consumer is gone; the context cancellation
		// that caused it also tears down the model call.
		_ = mux.Emit(ctx, stream.Event{
			Type:  tokenType,
			Stage: stage,
			Model: model,
			Round: round,
			Data:  stream.TokenData{Delta: delta, Thinking: thinking, TokensPerSecond: tps},
		})
	})
	r.tracker.End(requestID, model)
	return resp, r.tracker.Metrics(requestID, model), lerr
}

// RunStage1 fans the query out to every council model in parallel and
// gathers the drafts. Failed models are recorded with an error tag; fewer
// than two successes fails the request with ErrInsufficientCouncil.
func (r *Runner) RunStage1(
	ctx context.Context,
	requestID string,
	mux *stream.Mux,
	history []models.Message,
	query string,
) ([]models.Draft, error) {
	council := r.cfg.CouncilModelNames()
	if err := mux.Emit(ctx, stream.Event{Type: stream.EventStage1Start, Stage: 1}); err != nil {
		return nil, err
	}

	messages := buildDraftMessages(history, query)
	opts := llm.Options{Timeout: r.cfg.Deliberation.StageTimeout()}

	drafts := make([]models.Draft, len(council))
	g := &errgroup.Group{}
	for i, model := range council {
		g.Go(func() error {
			resp, metrics, lerr := r.streamModel(ctx, requestID, model, messages, opts,
				mux, stream.EventStage1Token, 1, 0)

			draft := models.Draft{
				Model:    model,
				Content:  resp.Content,
				Thinking: resp.Thinking,
				Metrics:  metrics,
			}
			complete := stream.ModelCompleteData{Metrics: metrics}
			if lerr != nil {
				slog.Warn("Council model failed in stage 1",
					"request_id", requestID, "model", model, "kind", lerr.Kind, "error", lerr)
				draft.Content = ""
				draft.ErrorKind = lerr.TraceKind()
				draft.Error = lerr.Error()
				complete.ErrorKind = draft.ErrorKind
				complete.Error = draft.Error
			}
			drafts[i] = draft

			_ = mux.Emit(ctx, stream.Event{
				Type: stream.EventStage1ModelComplete, Stage: 1, Model: model, Data: complete,
			})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return drafts, err
	}

	successes := 0
	for _, d := range drafts {
		if d.ErrorKind == "" && d.Content != "" {
			successes++
		}
	}
	if successes < 2 {
		return drafts, fmt.Errorf("%w: only %d of %d council models produced a draft",
			ErrInsufficientCouncil, successes, len(council))
	}

	if err := mux.Emit(ctx, stream.Event{Type: stream.EventStage1Complete, Stage: 1}); err != nil {
		return drafts, err
	}
	return drafts, nil
}

// Stage2Result carries everything Stage 2 produced: the per-round trace,
// the final aggregate ranking, and the final (possibly refined) drafts.
type Stage2Result struct {
	Rounds    []models.Round
	Aggregate []models.AggregateEntry
	Drafts    []models.Draft
}

// RunStage2 executes up to the requested number of peer-ranking rounds with
// refinement sub-rounds in between. It terminates early as soon as a round
// does not trigger refinement.
func (r *Runner) RunStage2(
	ctx context.Context,
	requestID string,
	mux *stream.Mux,
	query string,
	stage1 []models.Draft,
) (*Stage2Result, error) {
	// Only models that produced content participate from here on.
	finalDrafts := make([]models.Draft, 0, len(stage1))
	current := make(map[string]string)
	var survivors []string
	for _, d := range stage1 {
		if d.ErrorKind != "" || d.Content == "" {
			continue
		}
		finalDrafts = append(finalDrafts, d)
		current[d.Model] = d.Content
		survivors = append(survivors, d.Model)
	}

	lm := NewLabelMap(requestID, survivors)
	maxRounds := r.cfg.Deliberation.Rounds
	crossReview := r.cfg.Deliberation.CrossReviewEnabled()
	threshold := r.cfg.Deliberation.QualityThreshold

	result := &Stage2Result{Drafts: finalDrafts}

	for roundNum := 1; roundNum <= maxRounds; roundNum++ {
		if err := mux.Emit(ctx, stream.Event{
			Type: stream.EventStage2RoundStart, Stage: 2, Round: roundNum,
			Data: stream.RoundStartData{Round: roundNum, MaxRounds: maxRounds},
		}); err != nil {
			return result, err
		}

		rankings, err := r.runRankingRound(ctx, requestID, mux, query, roundNum, lm, current, survivors)
		if err != nil {
			return result, err
		}

		parseable := make([]models.Ranking, 0, len(rankings))
		for _, rk := range rankings {
			if rk.ErrorKind == "" && len(rk.Entries) > 0 {
				parseable = append(parseable, rk)
			}
		}
		if len(parseable) < 2 {
			return result, fmt.Errorf("%w: only %d of %d rankers produced parseable rankings in round %d",
				ErrInsufficientCouncil, len(parseable), len(survivors), roundNum)
		}

		aggregate := Aggregate(parseable, lm)
		result.Aggregate = aggregate

		// Refinement never runs at the last round: its output would go
		// unranked.
		refine := false
		if roundNum < maxRounds && crossReview {
			if min, ok := minMeanScore(aggregate); ok && min < threshold {
				refine = true
			}
		}

		round := models.Round{
			Round:     roundNum,
			Rankings:  rankings,
			Aggregate: aggregate,
			Refined:   refine,
		}
		result.Rounds = append(result.Rounds, round)

		if err := mux.Emit(ctx, stream.Event{
			Type: stream.EventStage2RoundComplete, Stage: 2, Round: roundNum,
			Data: stream.RoundCompleteData{
				Round: roundNum, Refined: refine, NextRound: refine, Aggregate: aggregate,
			},
		}); err != nil {
			return result, err
		}

		if !refine {
			break
		}
		if err := r.runRefinement(ctx, requestID, mux, query, roundNum, lm, rankings, current, result.Drafts); err != nil {
			return result, err
		}
	}

	if err := mux.Emit(ctx, stream.Event{
		Type: stream.EventStage2Complete, Stage: 2,
		Data: stream.Stage2CompleteData{Rounds: len(result.Rounds), Aggregate: result.Aggregate},
	}); err != nil {
		return result, err
	}
	return result, nil
}

// runRankingRound issues the concurrent ranking requests for one round and
// parses each result. Single-ranker failures and unparseable rankings are
// absorbed into the round trace.
func (r *Runner) runRankingRound(
	ctx context.Context,
	requestID string,
	mux *stream.Mux,
	query string,
	roundNum int,
	lm *LabelMap,
	current map[string]string,
	rankers []string,
) ([]models.Ranking, error) {
	opts := llm.Options{Timeout: r.cfg.Deliberation.StageTimeout()}

	rankings := make([]models.Ranking, len(rankers))
	g := &errgroup.Group{}
	for i, ranker := range rankers {
		g.Go(func() error {
			view := lm.ViewFor(ranker, current)
			messages := buildRankingMessages(query, view)
			// The stream key includes the round so each round's metrics stand alone.
			streamKey := fmt.Sprintf("%s:rank%d", requestID, roundNum)
			resp, metrics, lerr := r.streamModel(ctx, streamKey, ranker, messages, opts,
				mux, stream.EventStage2Token, 2, roundNum)

			ranking := models.Ranking{
				Ranker:   ranker,
				RawText:  resp.Content,
				Thinking: resp.Thinking,
				Metrics:  metrics,
			}
			complete := stream.ModelCompleteData{Metrics: metrics}
			if lerr != nil {
				slog.Warn("Ranker failed in stage 2",
					"request_id", requestID, "round", roundNum, "model", ranker,
					"kind", lerr.Kind, "error", lerr)
				ranking.ErrorKind = lerr.TraceKind()
				ranking.Error = lerr.Error()
				complete.ErrorKind = ranking.ErrorKind
				complete.Error = ranking.Error
			} else {
				parsed := ParseRanking(resp.Content, len(view))
				ranking.Warnings = parsed.Warnings
				if parsed.Unparseable() {
					// An abstention: recorded, excluded from the aggregate.
					ranking.ErrorKind = models.ErrKindUnparseable
				}
				for _, e := range parsed.Entries {
					if model, ok := lm.ModelFor(e.Label); ok {
						e.Model = model
					}
					ranking.Entries = append(ranking.Entries, e)
				}
			}
			rankings[i] = ranking

			_ = mux.Emit(ctx, stream.Event{
				Type: stream.EventStage2ModelComplete, Stage: 2, Model: ranker, Round: roundNum,
				Data: complete,
			})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return rankings, err
	}
	return rankings, nil
}

// runRefinement sends each surviving council model its own draft plus the
// de-anonymized peer feedback directed at it, and replaces the model's
// current content with the refined response. Refinement failures keep the
// previous content.
func (r *Runner) runRefinement(
	ctx context.Context,
	requestID string,
	mux *stream.Mux,
	query string,
	roundNum int,
	lm *LabelMap,
	rankings []models.Ranking,
	current map[string]string,
	finalDrafts []models.Draft,
) error {
	if err := mux.Emit(ctx, stream.Event{
		Type: stream.EventStage2RefinementStart, Stage: 2, Round: roundNum,
	}); err != nil {
		return err
	}

	opts := llm.Options{Timeout: r.cfg.Deliberation.StageTimeout()}

	var mu sync.Mutex
	g := &errgroup.Group{}
	for i := range finalDrafts {
		model := finalDrafts[i].Model
		ownContent := current[model]
		g.Go(func() error {
			label, _ := lm.LabelFor(model)
			feedback := feedbackFor(label, rankings)

			messages := buildRefinementMessages(query, ownContent, feedback)
			streamKey := fmt.Sprintf("%s:refine%d", requestID, roundNum)
			resp, metrics, lerr := r.streamModel(ctx, streamKey, model, messages, opts,
				mux, stream.EventStage2RefinementToken, 2, roundNum)

			if lerr != nil || resp.Content == "" {
				slog.Warn("Refinement failed, keeping previous draft",
					"request_id", requestID, "round", roundNum, "model", model, "error", lerr)
				return nil
			}

			mu.Lock()
			current[model] = resp.Content
			finalDrafts[i].Content = resp.Content
			finalDrafts[i].Thinking = resp.Thinking
			finalDrafts[i].Metrics = metrics
			finalDrafts[i].Refined = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// RunStage3 streams the chairman's synthesis over the final drafts and the
// aggregate ranking. Errors here are fatal for the request.
func (r *Runner) RunStage3(
	ctx context.Context,
	requestID string,
	mux *stream.Mux,
	query string,
	finalDrafts []models.Draft,
	aggregate []models.AggregateEntry,
) (*models.Synthesis, error) {
	if err := mux.Emit(ctx, stream.Event{Type: stream.EventStage3Start, Stage: 3}); err != nil {
		return nil, err
	}

	chairman := r.cfg.Models.Chairman.Name
	messages := buildSynthesisMessages(query, finalDrafts, aggregate)
	opts := llm.Options{Timeout: r.cfg.Deliberation.SynthesisTimeout()}

	streamKey := requestID + ":synthesis"
	resp, metrics, lerr := r.streamModel(ctx, streamKey, chairman, messages, opts,
		mux, stream.EventStage3Token, 3, 0)
	if lerr != nil {
		return nil, lerr
	}

	synthesis := &models.Synthesis{
		Model:    chairman,
		Content:  resp.Content,
		Thinking: resp.Thinking,
		Metrics:  metrics,
	}
	if err := mux.Emit(ctx, stream.Event{
		Type: stream.EventStage3Complete, Stage: 3,
		Data: stream.Stage3CompleteData{Content: resp.Content},
	}); err != nil {
		return synthesis, err
	}
	return synthesis, nil
}
