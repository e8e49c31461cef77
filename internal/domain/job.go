package domain

import "time"

// JobStatus is the coarse lifecycle status of a dispatch request.
type JobStatus string

const (
	JobOpen       JobStatus = "OPEN"
	JobMatched    JobStatus = "MATCHED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
)

// PriceType tells whether the listed price is final.
type PriceType string

const (
	PriceFixed      PriceType = "FIXED"
	PriceNegotiable PriceType = "NEGOTIABLE"
)

func (p PriceType) Valid() bool {
	return p == PriceFixed || p == PriceNegotiable
}

// Job is a dispatch request created by a requester.
type Job struct {
	ID             int64         `db:"id"`
	RequesterID    int64         `db:"requester_id"`
	OrganizationID *int64        `db:"organization_id"`
	SiteAddress    string        `db:"site_address"`
	SiteDetail     string        `db:"site_detail"`
	Latitude       float64       `db:"latitude"`
	Longitude      float64       `db:"longitude"`
	ScheduledAt    time.Time     `db:"scheduled_at"`
	EquipmentType  EquipmentType `db:"equipment_type"`
	MinHeight      *float64      `db:"min_height"`
	MinRating      *float64      `db:"min_rating"`
	Description    string        `db:"description"`
	Price          *int64        `db:"price"`
	PriceType      PriceType     `db:"price_type"`
	Urgent         bool          `db:"urgent"`
	Status         JobStatus     `db:"status"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

// IsTerminal reports whether no further transitions apply to the job.
func (j Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobCancelled
}

// OwnedBy reports whether p may act as the job's requester.
func (j Job) OwnedBy(p Principal) bool {
	if p.Role == RoleAdmin {
		return true
	}
	if p.Role != RoleRequester {
		return false
	}
	if j.RequesterID == p.ID {
		return true
	}
	return j.OrganizationID != nil && p.OrganizationID != nil && *j.OrganizationID == *p.OrganizationID
}
