package llm

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkSplitter routes streamed text into thinking and content segments by
// matching <think>…</think> delimiters incrementally. Tags split across
// chunk boundaries are handled by buffering any trailing partial tag.
// Used as a fallback when the provider has no structured thinking field.
type thinkSplitter struct {
	inThink bool
	buf     string
}

// feed consumes a delta and returns the thinking and content text that can
// be emitted so far. Text that might be the start of a tag is held back
// until the next delta (or flush) disambiguates it.
func (s *thinkSplitter) feed(delta string) (thinking, content string) {
	s.buf += delta
	var th, ct strings.Builder

	for {
		if s.inThink {
			if i := strings.Index(s.buf, thinkCloseTag); i >= 0 {
				th.WriteString(s.buf[:i])
				s.buf = s.buf[i+len(thinkCloseTag):]
				s.inThink = false
				continue
			}
			keep := partialTagSuffix(s.buf, thinkCloseTag)
			th.WriteString(s.buf[:len(s.buf)-keep])
			s.buf = s.buf[len(s.buf)-keep:]
			return th.String(), ct.String()
		}

		if i := strings.Index(s.buf, thinkOpenTag); i >= 0 {
			ct.WriteString(s.buf[:i])
			s.buf = s.buf[i+len(thinkOpenTag):]
			s.inThink = true
			continue
		}
		keep := partialTagSuffix(s.buf, thinkOpenTag)
		ct.WriteString(s.buf[:len(s.buf)-keep])
		s.buf = s.buf[len(s.buf)-keep:]
		return th.String(), ct.String()
	}
}

// flush drains the held-back buffer at end of stream. A dangling partial
// tag is literal text after all; it goes to whichever mode is active.
func (s *thinkSplitter) flush() (thinking, content string) {
	rest := s.buf
	s.buf = ""
	if s.inThink {
		return rest, ""
	}
	return "", rest
}

// partialTagSuffix returns the length of the longest proper prefix of tag
// that s ends with.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}

// StripThinking removes any <think>…</think> segments from text and returns
// the remaining content and the extracted thinking. Used by the ranking
// parser and the title extractor on whole responses.
func StripThinking(text string) (content, thinking string) {
	var sp thinkSplitter
	th, ct := sp.feed(text)
	th2, ct2 := sp.flush()
	return strings.TrimSpace(ct + ct2), strings.TrimSpace(th + th2)
}
