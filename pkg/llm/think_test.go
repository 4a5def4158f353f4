package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThinkSplitterSingleChunk(t *testing.T) {
	var sp thinkSplitter
	th, ct := sp.feed("<think>pondering</think>the answer")
	thF, ctF := sp.flush()
	assert.Equal(t, "pondering", th+thF)
	assert.Equal(t, "the answer", ct+ctF)
}

func TestThinkSplitterTagAcrossChunks(t *testing.T) {
	var sp thinkSplitter
	var thinking, content string
	for _, delta := range []string{"<thi", "nk>deep ", "thought</th", "ink>final"} {
		th, ct := sp.feed(delta)
		thinking += th
		content += ct
	}
	th, ct := sp.flush()
	thinking += th
	content += ct

	assert.Equal(t, "deep thought", thinking)
	assert.Equal(t, "final", content)
}

func TestThinkSplitterNoTags(t *testing.T) {
	var sp thinkSplitter
	th, ct := sp.feed("plain content only")
	thF, ctF := sp.flush()
	assert.Empty(t, th+thF)
	assert.Equal(t, "plain content only", ct+ctF)
}

func TestThinkSplitterDanglingPartialTag(t *testing.T) {
	// A lone "<th" that never becomes a tag is literal content.
	var sp thinkSplitter
	_, ct := sp.feed("a <th")
	thF, ctF := sp.flush()
	assert.Empty(t, thF)
	assert.Equal(t, "a <th", ct+ctF)
}

func TestThinkSplitterUnclosedThink(t *testing.T) {
	// Stream ends inside a think block: the tail counts as thinking.
	var sp thinkSplitter
	th1, _ := sp.feed("<think>never closed")
	th2, ct := sp.flush()
	assert.Equal(t, "never closed", th1+th2)
	assert.Empty(t, ct)
}

func TestStripThinking(t *testing.T) {
	content, thinking := StripThinking("<think>reason</think>answer here")
	assert.Equal(t, "answer here", content)
	assert.Equal(t, "reason", thinking)

	content, thinking = StripThinking("no tags at all")
	assert.Equal(t, "no tags at all", content)
	assert.Empty(t, thinking)

	content, thinking = StripThinking("a<think>x</think>b<think>y</think>c")
	assert.Equal(t, "abc", content)
	assert.Equal(t, "xy", thinking)
}
