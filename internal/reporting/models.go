package reporting

// BatchSummary aggregates the call results of one batch.
// Tenant isolation: a summary is only ever built for the caller's tenant.
type BatchSummary struct {
	TenantID string `json:"tenant_id"`
	BatchID  string `json:"batch_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`

	TotalRecipients int `json:"total_recipients"`
	TotalCalls      int `json:"total_calls"`
	OpenCalls       int `json:"open_calls"`

	SuccessCalls  int `json:"success_calls"`
	NoAnswerCalls int `json:"no_answer_calls"`
	FailedCalls   int `json:"failed_calls"`

	// AnsweredCalls counts results with at least one collected answer.
	AnsweredCalls int `json:"answered_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	SuccessRate float64 `json:"success_rate"`
}
