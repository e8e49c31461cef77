package postgres

import (
	"context"
	"fmt"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/jmoiron/sqlx"
)

const contractorColumns = `id, name, phone, business_registration_number, business_name, license_number,
	verification_status, verification_message, grade, rating, rating_count, warning_count, active,
	latitude, longitude, location_updated_at, approved_at, approved_by, created_at, updated_at`

const equipmentColumns = `id, contractor_id, type, model, tonnage, max_height, vehicle_number, status, created_at`

func (r reader) GetContractor(ctx context.Context, id int64) (domain.Contractor, error) {
	var c domain.Contractor
	err := sqlx.GetContext(ctx, r.q, &c, `SELECT `+contractorColumns+` FROM contractors WHERE id = $1`, id)
	if err != nil {
		return domain.Contractor{}, fmt.Errorf("failed to get contractor %d: %w", id, mapError(err))
	}
	return c, nil
}

func (r reader) GetOrganization(ctx context.Context, id int64) (domain.Organization, error) {
	var o domain.Organization
	err := sqlx.GetContext(ctx, r.q, &o, `SELECT id, name, warning_count, created_at FROM organizations WHERE id = $1`, id)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("failed to get organization %d: %w", id, mapError(err))
	}
	return o, nil
}

func (r reader) ListEquipment(ctx context.Context, contractorID int64) ([]domain.Equipment, error) {
	var out []domain.Equipment
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT `+equipmentColumns+` FROM equipment WHERE contractor_id = $1 ORDER BY id`, contractorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment for contractor %d: %w", contractorID, mapError(err))
	}
	return out, nil
}

func (s *Store) ListGradeHistory(ctx context.Context, contractorID int64) ([]domain.GradeHistory, error) {
	var out []domain.GradeHistory
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, contractor_id, previous_grade, new_grade, reason, changed_by, created_at
		FROM grade_history WHERE contractor_id = $1 ORDER BY created_at DESC, id DESC`, contractorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grade history for contractor %d: %w", contractorID, mapError(err))
	}
	return out, nil
}

func (t *txn) CreateContractor(ctx context.Context, c domain.Contractor) (domain.Contractor, error) {
	query := `
		INSERT INTO contractors (
			name, phone, business_registration_number, business_name, license_number,
			verification_status, verification_message, grade, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING ` + contractorColumns

	var out domain.Contractor
	err := t.tx.QueryRowxContext(ctx, query,
		c.Name, c.Phone, c.BusinessRegistrationNumber, c.BusinessName, c.LicenseNumber,
		c.VerificationStatus, c.VerificationMessage, c.Grade, c.Active, c.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Contractor{}, fmt.Errorf("failed to create contractor: %w", mapError(err))
	}
	return out, nil
}

func (t *txn) LockContractor(ctx context.Context, id int64) (domain.Contractor, error) {
	var c domain.Contractor
	err := t.tx.GetContext(ctx, &c, `SELECT `+contractorColumns+` FROM contractors WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return domain.Contractor{}, fmt.Errorf("failed to lock contractor %d: %w", id, mapError(err))
	}
	return c, nil
}

// UpdateContractor writes the mutable profile columns. The warning counter
// is owned by IncrementWarnings and is not written here.
func (t *txn) UpdateContractor(ctx context.Context, c domain.Contractor) error {
	query := `
		UPDATE contractors SET
			name = $1, phone = $2, business_name = $3,
			verification_status = $4, verification_message = $5,
			grade = $6, rating = $7, rating_count = $8, active = $9,
			latitude = $10, longitude = $11, location_updated_at = $12,
			approved_at = $13, approved_by = $14, updated_at = $15
		WHERE id = $16`

	res, err := t.tx.ExecContext(ctx, query,
		c.Name, c.Phone, c.BusinessName,
		c.VerificationStatus, c.VerificationMessage,
		c.Grade, c.Rating, c.RatingCount, c.Active,
		c.Latitude, c.Longitude, c.LocationUpdatedAt,
		c.ApprovedAt, c.ApprovedBy, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contractor %d: %w", c.ID, mapError(err))
	}
	return affected(res)
}

func (t *txn) CreateEquipment(ctx context.Context, e domain.Equipment) (domain.Equipment, error) {
	query := `
		INSERT INTO equipment (contractor_id, type, model, tonnage, max_height, vehicle_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + equipmentColumns

	var out domain.Equipment
	err := t.tx.QueryRowxContext(ctx, query,
		e.ContractorID, e.Type, e.Model, e.Tonnage, e.MaxHeight, e.VehicleNumber, e.Status, e.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("failed to create equipment: %w", mapError(err))
	}
	return out, nil
}

func (t *txn) UpdateEquipmentStatus(ctx context.Context, contractorID, equipmentID int64, status domain.EquipmentStatus) (domain.Equipment, error) {
	var out domain.Equipment
	err := t.tx.QueryRowxContext(ctx,
		`UPDATE equipment SET status = $1 WHERE id = $2 AND contractor_id = $3 RETURNING `+equipmentColumns,
		status, equipmentID, contractorID,
	).StructScan(&out)
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("failed to update equipment %d: %w", equipmentID, mapError(err))
	}
	return out, nil
}

func (t *txn) CreateGradeHistory(ctx context.Context, h domain.GradeHistory) (domain.GradeHistory, error) {
	query := `
		INSERT INTO grade_history (contractor_id, previous_grade, new_grade, reason, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, contractor_id, previous_grade, new_grade, reason, changed_by, created_at`

	var out domain.GradeHistory
	err := t.tx.QueryRowxContext(ctx, query,
		h.ContractorID, h.PreviousGrade, h.NewGrade, h.Reason, h.ChangedBy, h.CreatedAt,
	).StructScan(&out)
	if err != nil {
		return domain.GradeHistory{}, fmt.Errorf("failed to record grade change: %w", mapError(err))
	}
	return out, nil
}
