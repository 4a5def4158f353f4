package deliberation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
)

// WarningUnparseable is emitted when no ranking could be extracted at all.
// An unparseable ranking counts as an abstention for that ranker.
const WarningUnparseable = "unparseable"

// ParsedRanking is the structured output of parsing a ranker's free-form
// text: an ordered list of labels (best first) with optional quality
// scores, plus any parse warnings.
type ParsedRanking struct {
	Entries  []models.RankedLabel
	Warnings []string
}

// Unparseable reports whether nothing usable was extracted.
func (p *ParsedRanking) Unparseable() bool {
	return len(p.Entries) == 0
}

// Regex patterns for ranking extraction (compiled once).
var (
	// A line that opens with an ordinal: "1.", "2)", "#3", "4:", "5]".
	ordinalLinePattern = regexp.MustCompile(`^\s*(?:#\s*\d+\s*[.)\]:]?|\d+\s*[.)\]:])`)
	// An anonymized label, optionally prefixed with "Response".
	labelPattern = regexp.MustCompile(`\b(?:Response\s+)?([A-Z])\b`)
	// A quality score in the form "(4/5)", "4/5", or "4.5/5".
	scorePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*5`)
	// The explicit final-ranking marker, matched case-insensitively.
	finalMarkerPattern = regexp.MustCompile(`(?i)final\s+ranking`)
)

// ParseRanking extracts an ordered ranking from a model's free-form text.
// expected is the number of labels the ranker was shown; finding fewer
// emits a warning, finding none returns an empty list with an unparseable
// warning. The parser is intentionally forgiving — it tries the explicit
// FINAL RANKING marker first, then falls back to the last contiguous run
// of ordinal lines that mention a label.
func ParseRanking(text string, expected int) *ParsedRanking {
	result := &ParsedRanking{}

	// Reasoning segments routinely rehearse candidate orderings; only the
	// final answer counts.
	content, _ := llm.StripThinking(text)
	lines := strings.Split(content, "\n")

	block := rankingBlockAfterMarker(lines)
	if block == nil {
		block = trailingOrdinalRun(lines)
	}
	if len(block) == 0 {
		result.Warnings = append(result.Warnings, WarningUnparseable)
		return result
	}

	seen := make(map[string]struct{})
	for _, line := range block {
		label, score, ok := parseRankingLine(line)
		if !ok {
			continue
		}
		// Deduplicate by label, first occurrence wins.
		if _, dup := seen[label]; dup {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("duplicate label %s ignored", label))
			continue
		}
		seen[label] = struct{}{}
		result.Entries = append(result.Entries, models.RankedLabel{Label: label, Score: score})
	}

	if len(result.Entries) == 0 {
		result.Warnings = append(result.Warnings, WarningUnparseable)
	} else if expected > 0 && len(result.Entries) < expected {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("expected %d labels, found %d", expected, len(result.Entries)))
	}
	return result
}

// rankingBlockAfterMarker returns the ordinal lines following an explicit
// FINAL RANKING marker line, or nil when no marker is present.
func rankingBlockAfterMarker(lines []string) []string {
	markerIdx := -1
	for i, line := range lines {
		if finalMarkerPattern.MatchString(line) {
			markerIdx = i
		}
	}
	if markerIdx == -1 {
		return nil
	}

	var block []string
	for _, line := range lines[markerIdx+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(block) > 0 {
				break
			}
			continue
		}
		if !ordinalLinePattern.MatchString(trimmed) {
			if len(block) > 0 {
				break
			}
			continue
		}
		block = append(block, trimmed)
	}
	return block
}

// trailingOrdinalRun returns the last contiguous run of lines that each
// begin with an ordinal and mention a label.
func trailingOrdinalRun(lines []string) []string {
	var run []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if ordinalLinePattern.MatchString(trimmed) && labelPattern.MatchString(trimmed) {
			run = append(run, trimmed)
			continue
		}
		if trimmed == "" {
			continue // blank lines don't break a run
		}
		run = nil
	}
	return run
}

// parseRankingLine extracts the label and optional score from one ordinal
// line. The score defaults to nil when absent.
func parseRankingLine(line string) (label string, score *float64, ok bool) {
	// Drop the ordinal prefix so a bare "1." is never mistaken for content.
	rest := ordinalLinePattern.ReplaceAllString(line, "")

	m := labelPattern.FindStringSubmatch(rest)
	if m == nil {
		return "", nil, false
	}
	label = m[1]

	if sm := scorePattern.FindStringSubmatch(rest); sm != nil {
		if v, err := strconv.ParseFloat(sm[1], 64); err == nil && v >= 0 && v <= 5 {
			score = &v
		}
	}
	return label, score, true
}

// RenderRanking renders entries in the canonical final-ranking form. A
// parse of the rendered text yields the identical structure.
func RenderRanking(entries []models.RankedLabel) string {
	var sb strings.Builder
	sb.WriteString("FINAL RANKING:\n")
	for i, e := range entries {
		if e.Score != nil {
			fmt.Fprintf(&sb, "%d. Response %s (%s/5)\n", i+1, e.Label, trimFloat(*e.Score))
		} else {
			fmt.Fprintf(&sb, "%d. Response %s\n", i+1, e.Label)
		}
	}
	return sb.String()
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}
