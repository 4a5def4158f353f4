package deliberation

import (
	"github.com/quorumlabs/council/pkg/llm"
)

// streamCallback is called for each delta during stream collection, with
// thinking distinguishing reasoning text from final-answer content.
type streamCallback func(thinking bool, delta string)

// collectStream drains a model chunk channel into a complete response.
// The callback is optional (nil = buffered mode). When the stream ends in
// an ErrorChunk, the partial response collected so far is returned next to
// the error so callers can record it in the trace.
func collectStream(chunks <-chan llm.Chunk, cb streamCallback) (*llm.Response, *llm.Error) {
	resp := &llm.Response{}

	for chunk := range chunks {
		switch c := chunk.(type) {
		case llm.ThinkingChunk:
			resp.Thinking += c.Content
			if cb != nil {
				cb(true, c.Content)
			}
		case llm.ContentChunk:
			resp.Content += c.Content
			if cb != nil {
				cb(false, c.Content)
			}
		case llm.DoneChunk:
			// The done chunk carries the authoritative assembled text.
			resp.Content = c.Content
			resp.Thinking = c.Thinking
		case llm.ErrorChunk:
			return resp, c.Err
		}
	}
	return resp, nil
}
