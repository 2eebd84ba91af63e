package calls

import "strings"

// Outcome classifies how a call resolved.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeNoAnswer Outcome = "no_answer"
	OutcomeFailed   Outcome = "failed"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeNoAnswer, OutcomeFailed:
		return true
	default:
		return false
	}
}

// ClassifyOutcome derives an Outcome from the platform's termination reason and
// conversation status. The reason picks no_answer or failed; a status other
// than done or completed, including a missing one, forces failed.
func ClassifyOutcome(terminationReason, status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "completed":
	default:
		return OutcomeFailed
	}

	reason := strings.ToLower(terminationReason)
	switch {
	case strings.Contains(reason, "no_answer"),
		strings.Contains(reason, "no-answer"),
		strings.Contains(reason, "declined"),
		strings.Contains(reason, "voicemail"):
		return OutcomeNoAnswer
	case strings.Contains(reason, "error"), strings.Contains(reason, "failed"):
		return OutcomeFailed
	}
	return OutcomeSuccess
}
