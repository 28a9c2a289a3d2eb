package assessment

import "github.com/mindbridge/mindbridge/internal/sessionclient"

// Buffer holds static-phase answers keyed by question id. Setting an
// answer twice overwrites it; there is never more than one entry per
// question. Buffer is not safe for concurrent use; Machine guards it.
type Buffer struct {
	answers map[string]string
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{answers: make(map[string]string)}
}

// Set records value as the answer to questionID, replacing any earlier one.
func (b *Buffer) Set(questionID, value string) {
	b.answers[questionID] = value
}

// Get returns the answer to questionID.
func (b *Buffer) Get(questionID string) (string, bool) {
	v, ok := b.answers[questionID]
	return v, ok
}

// IsComplete reports whether every id in questionIDs has an answer.
func (b *Buffer) IsComplete(questionIDs []string) bool {
	return len(b.Missing(questionIDs)) == 0
}

// Missing returns the ids in questionIDs that have no answer, in order.
func (b *Buffer) Missing(questionIDs []string) []string {
	var missing []string
	for _, id := range questionIDs {
		if _, ok := b.answers[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Answers returns the answers for questionIDs in that order, skipping
// unanswered ids.
func (b *Buffer) Answers(questionIDs []string) []sessionclient.Answer {
	out := make([]sessionclient.Answer, 0, len(questionIDs))
	for _, id := range questionIDs {
		if v, ok := b.answers[id]; ok {
			out = append(out, sessionclient.Answer{QuestionID: id, Value: v})
		}
	}
	return out
}

// Len returns the number of answered questions.
func (b *Buffer) Len() int {
	return len(b.answers)
}

// Clear drops every answer.
func (b *Buffer) Clear() {
	clear(b.answers)
}
