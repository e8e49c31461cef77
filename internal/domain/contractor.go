package domain

import "time"

type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "PENDING"
	VerificationVerifying VerificationStatus = "VERIFYING"
	VerificationVerified  VerificationStatus = "VERIFIED"
	VerificationRejected  VerificationStatus = "REJECTED"
)

// Grade tiers. Grade 1 sees new jobs first.
const (
	GradeFirst  = 1
	GradeSecond = 2
	GradeThird  = 3
)

// ValidGrade reports whether g is a known grade tier.
func ValidGrade(g int) bool {
	return g >= GradeFirst && g <= GradeThird
}

// Contractor is an independent operator ("driver") who fulfils jobs.
type Contractor struct {
	ID                         int64              `db:"id"`
	Name                       string             `db:"name"`
	Phone                      string             `db:"phone"`
	BusinessRegistrationNumber string             `db:"business_registration_number"`
	BusinessName               string             `db:"business_name"`
	LicenseNumber              string             `db:"license_number"`
	VerificationStatus         VerificationStatus `db:"verification_status"`
	VerificationMessage        *string            `db:"verification_message"`
	Grade                      int                `db:"grade"`
	Rating                     float64            `db:"rating"`
	RatingCount                int                `db:"rating_count"`
	WarningCount               int                `db:"warning_count"`
	Active                     bool               `db:"active"`
	Latitude                   *float64           `db:"latitude"`
	Longitude                  *float64           `db:"longitude"`
	LocationUpdatedAt          *time.Time         `db:"location_updated_at"`
	ApprovedAt                 *time.Time         `db:"approved_at"`
	ApprovedBy                 *int64             `db:"approved_by"`
	CreatedAt                  time.Time          `db:"created_at"`
	UpdatedAt                  time.Time          `db:"updated_at"`
}

func (c Contractor) Verified() bool {
	return c.VerificationStatus == VerificationVerified
}

// Actor returns the tagged actor reference for the contractor.
func (c Contractor) Actor() Actor {
	return Actor{Type: ActorContractor, ID: c.ID}
}

// EquipmentType is the category of a unit of equipment.
type EquipmentType string

const (
	EquipmentHighLiftTruck  EquipmentType = "HIGH_LIFT_TRUCK"
	EquipmentAerialPlatform EquipmentType = "AERIAL_PLATFORM"
	EquipmentScissorLift    EquipmentType = "SCISSOR_LIFT"
	EquipmentBoomLift       EquipmentType = "BOOM_LIFT"
	EquipmentLadderTruck    EquipmentType = "LADDER_TRUCK"
	EquipmentCrane          EquipmentType = "CRANE"
	EquipmentForklift       EquipmentType = "FORKLIFT"
	EquipmentOther          EquipmentType = "OTHER"
)

func (t EquipmentType) Valid() bool {
	switch t {
	case EquipmentHighLiftTruck, EquipmentAerialPlatform, EquipmentScissorLift, EquipmentBoomLift,
		EquipmentLadderTruck, EquipmentCrane, EquipmentForklift, EquipmentOther:
		return true
	}
	return false
}

type EquipmentStatus string

const (
	EquipmentActive      EquipmentStatus = "ACTIVE"
	EquipmentInactive    EquipmentStatus = "INACTIVE"
	EquipmentMaintenance EquipmentStatus = "MAINTENANCE"
)

func (s EquipmentStatus) Valid() bool {
	return s == EquipmentActive || s == EquipmentInactive || s == EquipmentMaintenance
}

// Equipment is a unit owned by a contractor.
type Equipment struct {
	ID            int64           `db:"id"`
	ContractorID  int64           `db:"contractor_id"`
	Type          EquipmentType   `db:"type"`
	Model         string          `db:"model"`
	Tonnage       *float64        `db:"tonnage"`
	MaxHeight     *float64        `db:"max_height"`
	VehicleNumber string          `db:"vehicle_number"`
	Status        EquipmentStatus `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Serves reports whether the unit can be offered for job.
func (e Equipment) Serves(job Job) bool {
	if e.Status != EquipmentActive || e.Type != job.EquipmentType {
		return false
	}
	if job.MinHeight != nil {
		return e.MaxHeight != nil && *e.MaxHeight >= *job.MinHeight
	}
	return true
}

// GradeHistory is one entry of the append-only grade audit trail.
type GradeHistory struct {
	ID            int64     `db:"id"`
	ContractorID  int64     `db:"contractor_id"`
	PreviousGrade int       `db:"previous_grade"`
	NewGrade      int       `db:"new_grade"`
	Reason        string    `db:"reason"`
	ChangedBy     int64     `db:"changed_by"`
	CreatedAt     time.Time `db:"created_at"`
}

// Organization is a requester company.
type Organization struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	WarningCount int       `db:"warning_count"`
	CreatedAt    time.Time `db:"created_at"`
}
