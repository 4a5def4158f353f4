package llm

// Chunk is one element of a streaming completion. Implementations form a
// closed set: ThinkingChunk, ContentChunk, DoneChunk, ErrorChunk.
type Chunk interface {
	isChunk()
}

// ThinkingChunk carries a reasoning-text delta, either from a provider
// thinking field or extracted from <think>…</think> delimiters.
type ThinkingChunk struct {
	Content string
}

// ContentChunk carries a final-answer text delta.
type ContentChunk struct {
	Content string
}

// DoneChunk terminates a successful stream and carries the fully assembled
// content and thinking. Truncated reports that the stream closed without a
// terminal marker but content had already arrived, so the received content
// was finalized as-is.
type DoneChunk struct {
	Content   string
	Thinking  string
	Truncated bool
}

// ErrorChunk terminates a failed stream.
type ErrorChunk struct {
	Err *Error
}

func (ThinkingChunk) isChunk() {}
func (ContentChunk) isChunk()  {}
func (DoneChunk) isChunk()     {}
func (ErrorChunk) isChunk()    {}
