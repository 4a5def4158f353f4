package deliberation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMapBijection(t *testing.T) {
	modelIDs := []string{"llama", "qwen", "mistral", "gemma"}
	lm := NewLabelMap("request-1", modelIDs)

	assert.Equal(t, []string{"A", "B", "C", "D"}, lm.Labels())
	seen := make(map[string]bool)
	for _, m := range modelIDs {
		label, ok := lm.LabelFor(m)
		require.True(t, ok)
		assert.False(t, seen[label], "label %s assigned twice", label)
		seen[label] = true

		back, ok := lm.ModelFor(label)
		require.True(t, ok)
		assert.Equal(t, m, back)
	}
}

func TestLabelMapDeterministicPerSeed(t *testing.T) {
	modelIDs := []string{"llama", "qwen", "mistral"}

	// Same seed: identical assignment regardless of input order, so all
	// rankers in a round share the bijection.
	a := NewLabelMap("req", modelIDs)
	b := NewLabelMap("req", []string{"mistral", "llama", "qwen"})
	for _, m := range modelIDs {
		la, _ := a.LabelFor(m)
		lb, _ := b.LabelFor(m)
		assert.Equal(t, la, lb)
	}

	// Different seeds shuffle independently (not a guarantee of difference,
	// but across several seeds at least one assignment must differ).
	differs := false
	for _, seed := range []string{"req2", "req3", "req4", "req5", "req6"} {
		c := NewLabelMap(seed, modelIDs)
		for _, m := range modelIDs {
			la, _ := a.LabelFor(m)
			lc, _ := c.LabelFor(m)
			if la != lc {
				differs = true
			}
		}
	}
	assert.True(t, differs)
}

func TestViewForExcludesSelf(t *testing.T) {
	modelIDs := []string{"llama", "qwen", "mistral"}
	lm := NewLabelMap("req", modelIDs)
	drafts := map[string]string{
		"llama":   "draft L",
		"qwen":    "draft Q",
		"mistral": "draft M",
	}

	for _, ranker := range modelIDs {
		view := lm.ViewFor(ranker, drafts)
		require.Len(t, view, len(modelIDs)-1)

		ownLabel, _ := lm.LabelFor(ranker)
		for _, d := range view {
			assert.NotEqual(t, ownLabel, d.Label)
			assert.NotEqual(t, drafts[ranker], d.Content)
		}
	}
}

func TestViewForOrderedByLabel(t *testing.T) {
	lm := NewLabelMap("req", []string{"m1", "m2", "m3", "m4"})
	drafts := map[string]string{"m1": "1", "m2": "2", "m3": "3", "m4": "4"}
	view := lm.ViewFor("m1", drafts)
	for i := 1; i < len(view); i++ {
		assert.Less(t, view[i-1].Label, view[i].Label)
	}
}

func TestViewForSkipsModelsWithoutDrafts(t *testing.T) {
	lm := NewLabelMap("req", []string{"m1", "m2", "m3"})
	drafts := map[string]string{"m1": "1", "m2": "2"}
	view := lm.ViewFor("m1", drafts)
	require.Len(t, view, 1)
}
