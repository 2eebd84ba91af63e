package calls

// Merge applies incoming on top of existing.
//
// A set incoming field replaces the stored value; an unset incoming field
// (empty string, nil pointer, nil answer slot) never clears a stored value.
// Identity and CreatedAt are kept from existing.
func Merge(existing, incoming CallResult) CallResult {
	out := existing

	mergeString(&out.FirstName, incoming.FirstName)
	mergeString(&out.LastName, incoming.LastName)
	mergeString(&out.Company, incoming.Company)
	mergeString(&out.PhoneNumber, incoming.PhoneNumber)
	mergeString(&out.CampaignLabel, incoming.CampaignLabel)
	mergeString(&out.Transcript, incoming.Transcript)

	if incoming.Outcome != "" {
		out.Outcome = incoming.Outcome
	}
	if incoming.StartedAtUnix != nil {
		v := *incoming.StartedAtUnix
		out.StartedAtUnix = &v
	}
	if incoming.DurationSeconds != nil {
		v := *incoming.DurationSeconds
		out.DurationSeconds = &v
	}
	out.Answers = mergeAnswers(existing.Answers, incoming.Answers)

	if !incoming.UpdatedAt.IsZero() {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeAnswers(existing, incoming *Answers) *Answers {
	if incoming.Empty() {
		return cloneAnswers(existing)
	}
	out := cloneAnswers(existing)
	if out == nil {
		out = &Answers{}
	}
	for i := 1; i <= AnswerSlots; i++ {
		if v := incoming.Get(i); v != nil {
			out.Set(i, *v)
		}
	}
	return out
}

func cloneAnswers(a *Answers) *Answers {
	if a == nil {
		return nil
	}
	out := &Answers{}
	for i := 1; i <= AnswerSlots; i++ {
		if v := a.Get(i); v != nil {
			out.Set(i, *v)
		}
	}
	return out
}
