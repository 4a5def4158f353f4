package deliberation

import (
	"sort"

	"github.com/quorumlabs/council/pkg/models"
)

// Aggregate merges per-ranker orderings into a single ranking by mean
// position (1 = best). Labels a ranker omitted are simply not counted for
// that ranker. Ties break by higher mean quality score, then lexicographic
// label. The result is a pure function of the rankings — insertion order
// never matters.
func Aggregate(rankings []models.Ranking, lm *LabelMap) []models.AggregateEntry {
	type acc struct {
		positions int
		posSum    float64
		scoreSum  float64
		scores    int
	}
	byLabel := make(map[string]*acc)

	for _, ranking := range rankings {
		for pos, entry := range ranking.Entries {
			a, ok := byLabel[entry.Label]
			if !ok {
				a = &acc{}
				byLabel[entry.Label] = a
			}
			a.positions++
			a.posSum += float64(pos + 1)
			if entry.Score != nil {
				a.scores++
				a.scoreSum += *entry.Score
			}
		}
	}

	entries := make([]models.AggregateEntry, 0, len(byLabel))
	for label, a := range byLabel {
		e := models.AggregateEntry{
			Label:        label,
			MeanPosition: a.posSum / float64(a.positions),
			Rankers:      a.positions,
		}
		if model, ok := lm.ModelFor(label); ok {
			e.Model = model
		}
		if a.scores > 0 {
			mean := a.scoreSum / float64(a.scores)
			e.MeanScore = &mean
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MeanPosition != entries[j].MeanPosition {
			return entries[i].MeanPosition < entries[j].MeanPosition
		}
		si, sj := entries[i].MeanScore, entries[j].MeanScore
		switch {
		case si != nil && sj != nil && *si != *sj:
			return *si > *sj
		case si != nil && sj == nil:
			return true
		case si == nil && sj != nil:
			return false
		}
		return entries[i].Label < entries[j].Label
	})
	return entries
}

// minMeanScore returns the lowest mean quality score across labels that
// have one, and whether any label carried a score at all.
func minMeanScore(entries []models.AggregateEntry) (float64, bool) {
	var min float64
	found := false
	for _, e := range entries {
		if e.MeanScore == nil {
			continue
		}
		if !found || *e.MeanScore < min {
			min = *e.MeanScore
			found = true
		}
	}
	return min, found
}
