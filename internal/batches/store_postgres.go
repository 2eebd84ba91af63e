package batches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"voicebatch-platform/internal/calls"
	"voicebatch-platform/pkg/utils"
)

// PostgresStore implements Store on pgx.
//
// Tables are created by Migrate. Call results rely on the call_results_key
// unique constraint; concurrent writers converge through ON CONFLICT, not
// locking.
type PostgresStore struct {
	db utils.DB
}

func NewPostgresStore(db utils.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) CreateBatch(ctx context.Context, b Batch, leads []PendingLead) error {
	return utils.WithTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		const qb = `
INSERT INTO batches (tenant_id, batch_id, name, status, total_recipients)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant_id, batch_id) DO NOTHING
`
		status := b.Status
		if status == "" {
			status = BatchStatusInProgress
		}
		tag, err := tx.Exec(ctx, qb, b.TenantID, b.BatchID, b.Name, string(status), b.TotalRecipients)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		const ql = `
INSERT INTO pending_leads (batch_id, lead_id, tenant_id, first_name, last_name, company, phone_number, campaign_label, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
`
		for _, l := range leads {
			if _, err := tx.Exec(ctx, ql,
				l.BatchID,
				l.LeadID,
				l.TenantID,
				l.FirstName,
				l.LastName,
				l.Company,
				l.PhoneNumber,
				l.CampaignLabel,
			); err != nil {
				return fmt.Errorf("insert pending lead %s: %w", l.LeadID, err)
			}
		}
		return nil
	})
}

const batchColumns = `tenant_id, batch_id, name, status, total_recipients, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var status string
	if err := row.Scan(
		&b.TenantID,
		&b.BatchID,
		&b.Name,
		&status,
		&b.TotalRecipients,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return Batch{}, err
	}
	b.Status = BatchStatus(status)
	return b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, tenantID, batchID string) (Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM batches WHERE tenant_id = $1 AND batch_id = $2`
	b, err := scanBatch(s.db.QueryRow(ctx, q, tenantID, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, tenantID string, limit, offset int) ([]Batch, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM batches WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}

	q := `SELECT ` + batchColumns + ` FROM batches
WHERE tenant_id = $1
ORDER BY created_at DESC, batch_id DESC
LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) MarkBatchCompleted(ctx context.Context, tenantID, batchID string) (bool, error) {
	const q = `
UPDATE batches SET status = 'completed', updated_at = now()
WHERE tenant_id = $1 AND batch_id = $2 AND status <> 'completed'
`
	tag, err := s.db.Exec(ctx, q, tenantID, batchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkBatchFailed(ctx context.Context, tenantID, batchID string) (bool, error) {
	const q = `
UPDATE batches SET status = 'failed', updated_at = now()
WHERE tenant_id = $1 AND batch_id = $2 AND status = 'in_progress'
`
	tag, err := s.db.Exec(ctx, q, tenantID, batchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FindPendingLead(ctx context.Context, batchID, leadID string) (PendingLead, error) {
	const q = `
SELECT batch_id, lead_id, tenant_id, first_name, last_name, company, phone_number, campaign_label, status, created_at, updated_at
FROM pending_leads
WHERE batch_id = $1 AND lead_id = $2
`
	var l PendingLead
	var status string
	if err := s.db.QueryRow(ctx, q, batchID, leadID).Scan(
		&l.BatchID,
		&l.LeadID,
		&l.TenantID,
		&l.FirstName,
		&l.LastName,
		&l.Company,
		&l.PhoneNumber,
		&l.CampaignLabel,
		&status,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingLead{}, ErrNotFound
		}
		return PendingLead{}, err
	}
	l.Status = LeadStatus(status)
	return l, nil
}

func (s *PostgresStore) CompleteLead(ctx context.Context, tenantID, batchID, leadID string) error {
	const q = `
UPDATE pending_leads SET status = 'completed', updated_at = now()
WHERE tenant_id = $1 AND batch_id = $2 AND lead_id = $3
`
	tag, err := s.db.Exec(ctx, q, tenantID, batchID, leadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountPendingLeads(ctx context.Context, tenantID, batchID string) (int, error) {
	const q = `
SELECT count(*) FROM pending_leads
WHERE tenant_id = $1 AND batch_id = $2 AND status = 'pending'
`
	var n int
	if err := s.db.QueryRow(ctx, q, tenantID, batchID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) DeletePendingLeads(ctx context.Context, tenantID, batchID string) (int64, error) {
	const q = `DELETE FROM pending_leads WHERE tenant_id = $1 AND batch_id = $2`
	tag, err := s.db.Exec(ctx, q, tenantID, batchID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const resultColumns = `id, tenant_id, batch_id, lead_id, first_name, last_name, company, phone_number, campaign_label,
outcome, started_at_unix, duration_seconds, transcript, answers, created_at, updated_at`

// upsertResultSQL merges on the composite key: empty strings and NULLs in the
// incoming row keep the stored value; answer slots merge key by key.
const upsertResultSQL = `
INSERT INTO call_results (tenant_id, batch_id, lead_id, first_name, last_name, company, phone_number, campaign_label,
    outcome, started_at_unix, duration_seconds, transcript, answers)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT ON CONSTRAINT call_results_key DO UPDATE SET
    first_name       = COALESCE(NULLIF(EXCLUDED.first_name, ''), call_results.first_name),
    last_name        = COALESCE(NULLIF(EXCLUDED.last_name, ''), call_results.last_name),
    company          = COALESCE(NULLIF(EXCLUDED.company, ''), call_results.company),
    phone_number     = COALESCE(NULLIF(EXCLUDED.phone_number, ''), call_results.phone_number),
    campaign_label   = COALESCE(NULLIF(EXCLUDED.campaign_label, ''), call_results.campaign_label),
    outcome          = EXCLUDED.outcome,
    started_at_unix  = COALESCE(EXCLUDED.started_at_unix, call_results.started_at_unix),
    duration_seconds = COALESCE(EXCLUDED.duration_seconds, call_results.duration_seconds),
    transcript       = COALESCE(NULLIF(EXCLUDED.transcript, ''), call_results.transcript),
    answers          = CASE
                           WHEN EXCLUDED.answers IS NULL THEN call_results.answers
                           ELSE COALESCE(call_results.answers, '{}'::jsonb) || jsonb_strip_nulls(EXCLUDED.answers)
                       END,
    updated_at       = now()
RETURNING ` + resultColumns

func (s *PostgresStore) UpsertCallResult(ctx context.Context, r calls.CallResult) (calls.CallResult, error) {
	if err := validateResult(r); err != nil {
		return calls.CallResult{}, err
	}
	answers, err := encodeAnswers(r.Answers)
	if err != nil {
		return calls.CallResult{}, err
	}

	out, err := scanResult(s.db.QueryRow(ctx, upsertResultSQL,
		r.TenantID,
		r.BatchID,
		r.LeadID,
		r.FirstName,
		r.LastName,
		r.Company,
		r.PhoneNumber,
		r.CampaignLabel,
		string(r.Outcome),
		r.StartedAtUnix,
		r.DurationSeconds,
		r.Transcript,
		answers,
	))
	if err != nil {
		return calls.CallResult{}, fmt.Errorf("upsert call result: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetCallResult(ctx context.Context, key calls.Key) (calls.CallResult, error) {
	q := `SELECT ` + resultColumns + ` FROM call_results WHERE tenant_id = $1 AND batch_id = $2 AND lead_id = $3`
	r, err := scanResult(s.db.QueryRow(ctx, q, key.TenantID, key.BatchID, key.LeadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return calls.CallResult{}, ErrNotFound
		}
		return calls.CallResult{}, err
	}
	return r, nil
}

func (s *PostgresStore) ListCallResults(ctx context.Context, tenantID, batchID string) ([]calls.CallResult, error) {
	q := `SELECT ` + resultColumns + ` FROM call_results
WHERE tenant_id = $1 AND batch_id = $2
ORDER BY started_at_unix DESC NULLS LAST, id ASC`
	rows, err := s.db.Query(ctx, q, tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list call results: %w", err)
	}
	defer rows.Close()

	out := []calls.CallResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (calls.CallResult, error) {
	var r calls.CallResult
	var outcome string
	var answers []byte
	if err := row.Scan(
		&r.ID,
		&r.TenantID,
		&r.BatchID,
		&r.LeadID,
		&r.FirstName,
		&r.LastName,
		&r.Company,
		&r.PhoneNumber,
		&r.CampaignLabel,
		&outcome,
		&r.StartedAtUnix,
		&r.DurationSeconds,
		&r.Transcript,
		&answers,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return calls.CallResult{}, err
	}
	r.Outcome = calls.Outcome(outcome)
	if len(answers) > 0 {
		var a calls.Answers
		if err := json.Unmarshal(answers, &a); err != nil {
			return calls.CallResult{}, fmt.Errorf("decode answers: %w", err)
		}
		r.Answers = &a
	}
	return r, nil
}

// encodeAnswers returns nil for no answers so the column merge keeps the
// stored value.
func encodeAnswers(a *calls.Answers) ([]byte, error) {
	if a.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return b, nil
}
