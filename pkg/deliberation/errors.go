package deliberation

import "errors"

// ErrInsufficientCouncil is fatal for a request: fewer than two council
// models produced content in Stage 1, or fewer than two rankers produced
// parseable rankings in a Stage-2 round.
var ErrInsufficientCouncil = errors.New("insufficient council")
