package postgres

import (
	"context"
	"fmt"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/jmoiron/sqlx"
)

const matchColumns = `id, job_id, contractor_id, equipment_id, status, final_price, work_notes,
	matched_at, departed_at, arrived_at, work_started_at, completed_at,
	contractor_signature, contractor_signed_at, client_signature, client_name, client_signed_at,
	org_confirmed, org_signature, org_signer_name, org_confirmed_at,
	cancelled_at, cancelled_by, cancel_reason, report_url, updated_at`

// liveFirst orders a job's matches so the non-cancelled one comes first,
// then the most recent cancelled one.
const liveFirst = `ORDER BY (status <> 'CANCELLED') DESC, id DESC LIMIT 1`

func (r reader) GetMatch(ctx context.Context, id int64) (domain.Match, error) {
	var m domain.Match
	err := sqlx.GetContext(ctx, r.q, &m, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	if err != nil {
		return domain.Match{}, fmt.Errorf("failed to get match %d: %w", id, mapError(err))
	}
	return m, nil
}

func (r reader) GetMatchByJob(ctx context.Context, jobID int64) (domain.Match, error) {
	var m domain.Match
	err := sqlx.GetContext(ctx, r.q, &m, `SELECT `+matchColumns+` FROM matches WHERE job_id = $1 `+liveFirst, jobID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("failed to get match for job %d: %w", jobID, mapError(err))
	}
	return m, nil
}

// CreateMatch inserts a match. A second live match for the same job hits
// uq_matches_live_job and surfaces as store.ErrDuplicate.
func (t *txn) CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	query := `
		INSERT INTO matches (job_id, contractor_id, equipment_id, status, final_price, matched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + matchColumns

	var out domain.Match
	err := t.tx.QueryRowxContext(ctx, query,
		m.JobID, m.ContractorID, m.EquipmentID, m.Status, m.FinalPrice, m.MatchedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Match{}, fmt.Errorf("failed to create match for job %d: %w", m.JobID, mapError(err))
	}
	return out, nil
}

func (t *txn) LockMatchByJob(ctx context.Context, jobID int64) (domain.Match, error) {
	var m domain.Match
	err := t.tx.GetContext(ctx, &m, `SELECT `+matchColumns+` FROM matches WHERE job_id = $1 `+liveFirst+` FOR UPDATE`, jobID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("failed to lock match for job %d: %w", jobID, mapError(err))
	}
	return m, nil
}

// UpdateMatch writes every mutable column, conditional on the stored
// status still being expected.
func (t *txn) UpdateMatch(ctx context.Context, m domain.Match, expected domain.MatchStatus) error {
	query := `
		UPDATE matches SET
			status = $1, final_price = $2, work_notes = $3,
			departed_at = $4, arrived_at = $5, work_started_at = $6, completed_at = $7,
			contractor_signature = $8, contractor_signed_at = $9,
			client_signature = $10, client_name = $11, client_signed_at = $12,
			org_confirmed = $13, org_signature = $14, org_signer_name = $15, org_confirmed_at = $16,
			cancelled_at = $17, cancelled_by = $18, cancel_reason = $19,
			updated_at = $20
		WHERE id = $21 AND status = $22`

	res, err := t.tx.ExecContext(ctx, query,
		m.Status, m.FinalPrice, m.WorkNotes,
		m.DepartedAt, m.ArrivedAt, m.WorkStartedAt, m.CompletedAt,
		m.ContractorSignature, m.ContractorSignedAt,
		m.ClientSignature, m.ClientName, m.ClientSignedAt,
		m.OrgConfirmed, m.OrgSignature, m.OrgSignerName, m.OrgConfirmedAt,
		m.CancelledAt, m.CancelledBy, m.CancelReason,
		m.UpdatedAt,
		m.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %d: %w", m.ID, mapError(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("match %d is no longer %s: %w", m.ID, expected, err)
	}
	return nil
}

func (s *Store) SetReportURL(ctx context.Context, matchID int64, url string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET report_url = $1, updated_at = NOW() WHERE id = $2 AND report_url IS NULL`,
		url, matchID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set report url for match %d: %w", matchID, mapError(err))
	}
	return flipped(res)
}

func (t *txn) CreateRating(ctx context.Context, r domain.Rating) (domain.Rating, error) {
	query := `
		INSERT INTO ratings (match_id, contractor_id, rater_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, match_id, contractor_id, rater_id, score, comment, created_at`

	var out domain.Rating
	err := t.tx.QueryRowxContext(ctx, query,
		r.MatchID, r.ContractorID, r.RaterID, r.Score, r.Comment, r.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("failed to create rating for match %d: %w", r.MatchID, mapError(err))
	}
	return out, nil
}
