package deliberation

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"
)

// LabelMap is the bijection between real model ids and opaque labels for
// one Stage-2 invocation. The shuffle is deterministic for a given seed
// key, so every ranker in a round references the same assignment.
type LabelMap struct {
	labels  []string
	byModel map[string]string
	byLabel map[string]string
}

// NewLabelMap assigns labels A, B, C, … to a shuffled permutation of the
// given models. seedKey is the per-request seed (the request id).
func NewLabelMap(seedKey string, modelIDs []string) *LabelMap {
	shuffled := make([]string, len(modelIDs))
	copy(shuffled, modelIDs)
	sort.Strings(shuffled) // canonical input order so the seed alone decides

	h := fnv.New64a()
	_, _ = h.Write([]byte(seedKey))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	lm := &LabelMap{
		byModel: make(map[string]string, len(shuffled)),
		byLabel: make(map[string]string, len(shuffled)),
	}
	for i, model := range shuffled {
		label := string(rune('A' + i))
		lm.labels = append(lm.labels, label)
		lm.byModel[model] = label
		lm.byLabel[label] = model
	}
	return lm
}

// Labels returns every label in stable (alphabetical) order.
func (lm *LabelMap) Labels() []string {
	out := make([]string, len(lm.labels))
	copy(out, lm.labels)
	return out
}

// LabelFor returns the label assigned to a model.
func (lm *LabelMap) LabelFor(model string) (string, bool) {
	l, ok := lm.byModel[model]
	return l, ok
}

// ModelFor de-anonymizes a label back to its model id.
func (lm *LabelMap) ModelFor(label string) (string, bool) {
	m, ok := lm.byLabel[label]
	return m, ok
}

// LabeledDraft is one anonymized response presented to a ranker.
type LabeledDraft struct {
	Label   string
	Content string
}

// ViewFor builds the anonymized view presented to a ranker: every current
// draft except the ranker's own, ordered by label. A ranker never sees (or
// ranks) itself.
func (lm *LabelMap) ViewFor(ranker string, drafts map[string]string) []LabeledDraft {
	var view []LabeledDraft
	for _, label := range lm.labels {
		model := lm.byLabel[label]
		if model == ranker {
			continue
		}
		content, ok := drafts[model]
		if !ok {
			continue
		}
		view = append(view, LabeledDraft{Label: label, Content: content})
	}
	return view
}
