package calls

import "strings"

// TranscriptSeparator joins flattened transcript lines.
const TranscriptSeparator = " --- "

// TranscriptTurn is one utterance of a conversation.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// FlattenTranscript renders turns as "role: message" lines joined by
// TranscriptSeparator. Turns with an empty message are dropped.
func FlattenTranscript(turns []TranscriptTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		msg := strings.TrimSpace(t.Message)
		if msg == "" {
			continue
		}
		role := strings.TrimSpace(t.Role)
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, role+": "+msg)
	}
	return strings.Join(lines, TranscriptSeparator)
}
