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

const jobColumns = `id, requester_id, organization_id, site_address, site_detail, latitude, longitude,
	scheduled_at, equipment_type, min_height, min_rating, description, price, price_type, urgent,
	status, created_at, updated_at`

func (r reader) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	var job domain.Job
	err := sqlx.GetContext(ctx, r.q, &job, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to get job %d: %w", id, mapError(err))
	}
	return job, nil
}

// ListOpenJobs returns open jobs scheduled from q.ScheduledFrom on, urgent
// first then newest first.
func (s *Store) ListOpenJobs(ctx context.Context, q store.OpenJobsQuery) ([]domain.Job, error) {
	conditions := []string{"status = $1", "scheduled_at >= $2"}
	args := []any{domain.JobOpen, q.ScheduledFrom}
	argPos := 3

	if q.EquipmentType != "" {
		conditions = append(conditions, fmt.Sprintf("equipment_type = $%d", argPos))
		args = append(args, q.EquipmentType)
		argPos++
	}
	if q.ReleasedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("(urgent OR created_at <= $%d)", argPos))
		args = append(args, *q.ReleasedBefore)
		argPos++
	}
	if q.UrgentReleasedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("(NOT urgent OR created_at <= $%d)", argPos))
		args = append(args, *q.UrgentReleasedBefore)
		argPos++
	}
	if q.Rating != nil {
		conditions = append(conditions, fmt.Sprintf("(min_rating IS NULL OR min_rating <= $%d)", argPos))
		args = append(args, *q.Rating)
		argPos++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY urgent DESC, created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, strings.Join(conditions, " AND "), argPos, argPos+1)
	args = append(args, limit, q.Offset)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list open jobs: %w", mapError(err))
	}
	return jobs, nil
}

func (t *txn) CreateJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	query := `
		INSERT INTO jobs (
			requester_id, organization_id, site_address, site_detail, latitude, longitude,
			scheduled_at, equipment_type, min_height, min_rating, description, price, price_type,
			urgent, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $16
		)
		RETURNING ` + jobColumns

	var out domain.Job
	err := t.tx.QueryRowxContext(ctx, query,
		job.RequesterID, job.OrganizationID, job.SiteAddress, job.SiteDetail, job.Latitude, job.Longitude,
		job.ScheduledAt, job.EquipmentType, job.MinHeight, job.MinRating, job.Description, job.Price, job.PriceType,
		job.Urgent, job.Status, job.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", mapError(err))
	}
	return out, nil
}

// LockJob reads the job and holds its row lock until commit. Concurrent
// accepts queue here and re-read the committed status once released.
func (t *txn) LockJob(ctx context.Context, id int64) (domain.Job, error) {
	var job domain.Job
	err := t.tx.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to lock job %d: %w", id, mapError(err))
	}
	return job, nil
}

func (t *txn) UpdateJobStatus(ctx context.Context, id int64, from, to domain.JobStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %d status: %w", id, mapError(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("job %d is no longer %s: %w", id, from, err)
	}
	return nil
}
