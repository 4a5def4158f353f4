// Package llm issues chat-completion requests against OpenAI-compatible
// endpoints and separates model thinking from final-answer content.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/respjson"
)

var (
	errNoChoices       = errors.New("response contained no choices")
	errNoTerminalChunk = errors.New("stream closed without a terminal chunk or any content")
)

// Role identifies the author of a chat message sent to a model.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// Options tunes a single completion call.
type Options struct {
	Temperature *float64
	MaxTokens   int
	// Timeout bounds the whole call. Zero means no per-call deadline beyond
	// the caller's context.
	Timeout time.Duration
}

// Response is a fully-assembled completion.
type Response struct {
	Content  string
	Thinking string
}

// Endpoint is a resolved connection target for one model.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// EndpointResolver maps a model id to its connection parameters. Resolution
// precedence (per-model → global → built-in default) lives in the config
// package; the client only consumes the result.
type EndpointResolver func(model string) Endpoint

// Client is the model-call surface consumed by the deliberation engine and
// the title service.
type Client interface {
	// Complete performs a whole-response completion.
	Complete(ctx context.Context, model string, messages []Message, opts Options) (*Response, error)
	// CompleteStream performs a streaming completion. The returned channel
	// yields ThinkingChunk/ContentChunk deltas and is terminated by at most
	// one DoneChunk or ErrorChunk, after which it is closed. Once ctx is done
	// the channel may close without a terminal chunk.
	CompleteStream(ctx context.Context, model string, messages []Message, opts Options) (<-chan Chunk, error)
}

// OpenAIClient talks to OpenAI-compatible HTTP backends. A single client
// serves every model; the resolver supplies per-model endpoints at call
// time (no per-provider subtypes).
type OpenAIClient struct {
	resolve EndpointResolver
}

// NewOpenAIClient creates a client with the given endpoint resolver.
func NewOpenAIClient(resolve EndpointResolver) *OpenAIClient {
	return &OpenAIClient{resolve: resolve}
}

// api builds an SDK client bound to the model's resolved endpoint.
func (c *OpenAIClient) api(model string) openai.Client {
	ep := c.resolve(model)
	opts := []option.RequestOption{option.WithBaseURL(ep.BaseURL)}
	if ep.APIKey != "" {
		opts = append(opts, option.WithAPIKey(ep.APIKey))
	}
	return openai.NewClient(opts...)
}

func buildParams(model string, messages []Message, opts Options) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

// Complete performs a whole-response completion and separates thinking from
// content (structured reasoning field first, <think> delimiters as fallback).
func (c *OpenAIClient) Complete(ctx context.Context, model string, messages []Message, opts Options) (*Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cli := c.api(model)
	resp, err := cli.Chat.Completions.New(ctx, buildParams(model, messages, opts))
	if err != nil {
		return nil, classify(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindProtocolError, Model: model, Err: errNoChoices}
	}

	msg := resp.Choices[0].Message
	thinking := extraStringField(msg.JSON.ExtraFields, "reasoning_content", "reasoning")
	content := msg.Content
	if thinking == "" {
		content, thinking = StripThinking(content)
	}
	return &Response{Content: content, Thinking: thinking}, nil
}

// CompleteStream performs a streaming completion. The producer goroutine
// owns the channel and terminates it with a DoneChunk or ErrorChunk, unless
// the context ends first: then it closes the channel without a terminal chunk.
func (c *OpenAIClient) CompleteStream(ctx context.Context, model string, messages []Message, opts Options) (<-chan Chunk, error) {
	chunks := make(chan Chunk, 100)

	ctx, cancel := context.WithCancel(ctx)
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	go func() {
		defer close(chunks)
		defer cancel()
		c.runStream(ctx, model, messages, opts, chunks)
	}()

	return chunks, nil
}

func (c *OpenAIClient) runStream(ctx context.Context, model string, messages []Message, opts Options, chunks chan<- Chunk) {
	params := buildParams(model, messages, opts)
	cli := c.api(model)
	stream := cli.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		splitter    thinkSplitter
		thinkingAcc string
		contentAcc  string
		sawFinish   bool
	)

	emit := func(ch Chunk) bool {
		select {
		case chunks <- ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	emitParts := func(thinking, content string) bool {
		if thinking != "" {
			thinkingAcc += thinking
			if !emit(ThinkingChunk{Content: thinking}) {
				return false
			}
		}
		if content != "" {
			contentAcc += content
			if !emit(ContentChunk{Content: content}) {
				return false
			}
		}
		return true
	}

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		// Structured thinking field first (reasoning models), then route the
		// content delta through the <think> splitter for delimiter-style models.
		if reasoning := extraStringField(choice.Delta.JSON.ExtraFields, "reasoning_content", "reasoning"); reasoning != "" {
			if !emitParts(reasoning, "") {
				return
			}
		}
		if choice.Delta.Content != "" {
			th, ct := splitter.feed(choice.Delta.Content)
			if !emitParts(th, ct) {
				return
			}
		}
		if choice.FinishReason != "" {
			sawFinish = true
		}
	}

	th, ct := splitter.flush()
	if !emitParts(th, ct) {
		return
	}

	if err := stream.Err(); err != nil {
		cerr := classify(model, err)
		if cerr.Kind != KindCancelled && cerr.Kind != KindTimeout && contentAcc != "" {
			// Mid-stream disconnect after usable output: finalize what arrived.
			slog.Warn("Stream closed before completion, finalizing partial content",
				"model", model, "error", err)
			emit(DoneChunk{Content: contentAcc, Thinking: thinkingAcc, Truncated: true})
			return
		}
		emit(ErrorChunk{Err: cerr})
		return
	}

	if !sawFinish && contentAcc == "" {
		emit(ErrorChunk{Err: &Error{Kind: KindProtocolError, Model: model, Err: errNoTerminalChunk}})
		return
	}

	emit(DoneChunk{Content: contentAcc, Thinking: thinkingAcc, Truncated: !sawFinish})
}

// extraStringField decodes the first present string-valued extra field by
// name. Provider thinking fields are not part of the OpenAI schema, so they
// surface only in the raw JSON.
func extraStringField(fields map[string]respjson.Field, names ...string) string {
	for _, name := range names {
		f, ok := fields[name]
		if !ok || f.Raw() == "" || f.Raw() == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal([]byte(f.Raw()), &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
