package models

import "regexp"

// TitleStatus is the lifecycle state of a title-generation job.
type TitleStatus string

// Title job statuses.
const (
	TitleStatusQueued     TitleStatus = "queued"
	TitleStatusGenerating TitleStatus = "generating"
	TitleStatusThinking   TitleStatus = "thinking"
	TitleStatusComplete   TitleStatus = "complete"
	TitleStatusError      TitleStatus = "error"
)

// TitlePriority orders jobs in the title queue.
type TitlePriority int

// Title priorities. Immediate jobs preempt the queue head but never an
// in-progress background job.
const (
	PriorityBackground TitlePriority = iota
	PriorityImmediate
)

// TitleJob is a pending or in-flight title generation. Jobs live only in
// the title service; on restart the service rescans for conversations whose
// title still matches the placeholder form.
type TitleJob struct {
	ConversationID string
	UserMessage    string
	Priority       TitlePriority
	Attempts       int
	Status         TitleStatus
}

// placeholderPattern matches the auto-assigned title form
// "Conversation <first 8 chars of a uuid>".
var placeholderPattern = regexp.MustCompile(`^Conversation [0-9a-f]{8}$`)

// legacyGenericTitle is the literal the old title path could leave behind;
// still treated as "needs generation".
const legacyGenericTitle = "New Conversation"

// PlaceholderTitle returns the placeholder title for a conversation id.
func PlaceholderTitle(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "Conversation " + id
}

// IsGenericTitle reports whether a title is the placeholder form (or the
// legacy literal) and therefore still needs generation.
func IsGenericTitle(title string) bool {
	return title == legacyGenericTitle || placeholderPattern.MatchString(title)
}
