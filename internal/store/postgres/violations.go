package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/jmoiron/sqlx"
)

const violationColumns = `id, actor_type, actor_id, category, reason, job_id, issued_by, created_at`

const suspensionColumns = `id, actor_type, actor_id, kind, reason, start_at, end_at, active, automatic,
	issued_by, lifted_by, lifted_at, created_at`

// actorTable resolves the table that carries an actor's warning counter.
func actorTable(t domain.ActorType) (string, error) {
	switch t {
	case domain.ActorContractor:
		return "contractors", nil
	case domain.ActorOrganization:
		return "organizations", nil
	default:
		return "", fmt.Errorf("unknown actor type %q", t)
	}
}

func (r reader) GetSuspension(ctx context.Context, id int64) (domain.Suspension, error) {
	var s domain.Suspension
	err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+suspensionColumns+` FROM suspensions WHERE id = $1`, id)
	if err != nil {
		return domain.Suspension{}, fmt.Errorf("failed to get suspension %d: %w", id, mapError(err))
	}
	return s, nil
}

func (r reader) ActiveSuspension(ctx context.Context, actor domain.Actor, now time.Time) (domain.Suspension, error) {
	var s domain.Suspension
	err := sqlx.GetContext(ctx, r.q, &s, `
		SELECT `+suspensionColumns+` FROM suspensions
		WHERE actor_type = $1 AND actor_id = $2 AND active AND (end_at IS NULL OR end_at > $3)
		ORDER BY id DESC LIMIT 1`,
		actor.Type, actor.ID, now,
	)
	if err != nil {
		return domain.Suspension{}, fmt.Errorf("failed to get active suspension for %s: %w", actor, mapError(err))
	}
	return s, nil
}

func (s *Store) ListSuspensions(ctx context.Context, q store.SuspensionQuery) ([]domain.Suspension, error) {
	var conditions []string
	var args []any
	argPos := 1

	if q.Actor != nil {
		conditions = append(conditions, fmt.Sprintf("actor_type = $%d AND actor_id = $%d", argPos, argPos+1))
		args = append(args, q.Actor.Type, q.Actor.ID)
		argPos += 2
	}
	if q.ActiveOnly {
		conditions = append(conditions, "active")
	}

	query := `SELECT ` + suspensionColumns + ` FROM suspensions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	var out []domain.Suspension
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list suspensions: %w", mapError(err))
	}
	return out, nil
}

func (s *Store) ListViolations(ctx context.Context, q store.ViolationQuery) ([]domain.Violation, error) {
	var conditions []string
	var args []any
	argPos := 1

	if q.Actor != nil {
		conditions = append(conditions, fmt.Sprintf("actor_type = $%d AND actor_id = $%d", argPos, argPos+1))
		args = append(args, q.Actor.Type, q.Actor.ID)
		argPos += 2
	}
	if q.After != nil {
		conditions = append(conditions, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argPos, argPos+1))
		args = append(args, q.After.CreatedAt, q.After.ID)
		argPos += 2
	}

	query := `SELECT ` + violationColumns + ` FROM violations`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	var out []domain.Violation
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", mapError(err))
	}
	return out, nil
}

func (s *Store) ListExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]domain.Suspension, error) {
	var out []domain.Suspension
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+suspensionColumns+` FROM suspensions
		WHERE active AND kind = $1 AND end_at IS NOT NULL AND end_at <= $2
		ORDER BY end_at LIMIT $3`,
		domain.SuspensionTemporary, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired suspensions: %w", mapError(err))
	}
	return out, nil
}

// ExpireSuspension is safe to race with other sweepers and with a manual
// lift: only the caller whose update matches the still-active row wins.
func (s *Store) ExpireSuspension(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suspensions SET active = FALSE, lifted_at = $2
		WHERE id = $1 AND active AND end_at IS NOT NULL AND end_at <= $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire suspension %d: %w", id, mapError(err))
	}
	return flipped(res)
}

func (t *txn) IncrementWarnings(ctx context.Context, actor domain.Actor) (int, error) {
	table, err := actorTable(actor.Type)
	if err != nil {
		return 0, err
	}

	var count int
	query := fmt.Sprintf(`UPDATE %s SET warning_count = warning_count + 1 WHERE id = $1 RETURNING warning_count`, table)
	if err := t.tx.GetContext(ctx, &count, query, actor.ID); err != nil {
		return 0, fmt.Errorf("failed to increment warnings for %s: %w", actor, mapError(err))
	}
	return count, nil
}

func (t *txn) CreateViolation(ctx context.Context, v domain.Violation) (domain.Violation, error) {
	query := `
		INSERT INTO violations (actor_type, actor_id, category, reason, job_id, issued_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + violationColumns

	var out domain.Violation
	err := t.tx.QueryRowxContext(ctx, query,
		v.ActorType, v.ActorID, v.Category, v.Reason, v.JobID, v.IssuedBy, v.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Violation{}, fmt.Errorf("failed to create violation: %w", mapError(err))
	}
	return out, nil
}

// CreateSuspension first retires the actor's lapsed suspensions so the
// partial unique index only guards suspensions still in effect, then
// inserts without aborting the transaction on conflict.
func (t *txn) CreateSuspension(ctx context.Context, s domain.Suspension) (domain.Suspension, error) {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE suspensions SET active = FALSE, lifted_at = $3
		WHERE actor_type = $1 AND actor_id = $2 AND active AND end_at IS NOT NULL AND end_at <= $3`,
		s.ActorType, s.ActorID, s.StartAt,
	)
	if err != nil {
		return domain.Suspension{}, fmt.Errorf("failed to retire lapsed suspensions for %s: %w", s.Actor(), mapError(err))
	}

	query := `
		INSERT INTO suspensions (actor_type, actor_id, kind, reason, start_at, end_at, active, automatic, issued_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9)
		ON CONFLICT (actor_type, actor_id) WHERE active DO NOTHING
		RETURNING ` + suspensionColumns

	rows, err := t.tx.QueryxContext(ctx, query,
		s.ActorType, s.ActorID, s.Kind, s.Reason, s.StartAt, s.EndAt, s.Automatic, s.IssuedBy, s.CreatedAt,
	)
	if err != nil {
		return domain.Suspension{}, fmt.Errorf("failed to create suspension for %s: %w", s.Actor(), mapError(err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Suspension{}, fmt.Errorf("failed to create suspension for %s: %w", s.Actor(), mapError(err))
		}
		return domain.Suspension{}, fmt.Errorf("suspension for %s: %w", s.Actor(), store.ErrDuplicate)
	}

	var out domain.Suspension
	if err := rows.StructScan(&out); err != nil {
		return domain.Suspension{}, fmt.Errorf("failed to scan suspension: %w", err)
	}
	return out, nil
}

func (t *txn) LiftSuspension(ctx context.Context, id, liftedBy int64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE suspensions SET active = FALSE, lifted_by = $2, lifted_at = $3 WHERE id = $1 AND active`,
		id, liftedBy, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to lift suspension %d: %w", id, mapError(err))
	}
	return flipped(res)
}
