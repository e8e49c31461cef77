package dto

import (
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
)

type CreateJobRequest struct {
	SiteAddress   string   `json:"site_address" binding:"required"`
	SiteDetail    string   `json:"site_detail"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	ScheduledAt   string   `json:"scheduled_at" binding:"required"`
	EquipmentType string   `json:"equipment_type" binding:"required"`
	MinHeight     *float64 `json:"min_height"`
	MinRating     *float64 `json:"min_rating"`
	Description   string   `json:"description"`
	Price         *int64   `json:"price"`
	PriceType     string   `json:"price_type"`
	Urgent        bool     `json:"urgent"`
}

type ListOpenJobsRequest struct {
	EquipmentType string   `form:"equipment_type"`
	Latitude      *float64 `form:"latitude"`
	Longitude     *float64 `form:"longitude"`
	RadiusKm      *float64 `form:"radius_km"`
	Limit         int      `form:"limit"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type AcceptJobRequest struct {
	EquipmentID *int64 `json:"equipment_id"`
}

type CancelJobRequest struct {
	Reason string `json:"reason"`
	NoShow bool   `json:"no_show"`
}

type ContractorSignatureRequest struct {
	Signature  string  `json:"signature" binding:"required"`
	FinalPrice *int64  `json:"final_price"`
	WorkNotes  *string `json:"work_notes"`
}

type ClientSignatureRequest struct {
	Signature  string `json:"signature" binding:"required"`
	SignerName string `json:"signer_name" binding:"required"`
}

type OrganizationConfirmationRequest struct {
	Signature  *string `json:"signature"`
	SignerName *string `json:"signer_name"`
}

type RateMatchRequest struct {
	Score   int    `json:"score" binding:"required"`
	Comment string `json:"comment"`
}

type ReportResponse struct {
	JobID     int64  `json:"job_id"`
	ReportURL string `json:"report_url"`
}

type JobDTO struct {
	JobID          int64    `json:"job_id"`
	RequesterID    int64    `json:"requester_id"`
	OrganizationID *int64   `json:"organization_id,omitempty"`
	SiteAddress    string   `json:"site_address"`
	SiteDetail     string   `json:"site_detail,omitempty"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	ScheduledAt    string   `json:"scheduled_at"`
	EquipmentType  string   `json:"equipment_type"`
	MinHeight      *float64 `json:"min_height,omitempty"`
	MinRating      *float64 `json:"min_rating,omitempty"`
	Description    string   `json:"description,omitempty"`
	Price          *int64   `json:"price,omitempty"`
	PriceType      string   `json:"price_type"`
	Urgent         bool     `json:"urgent"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type MatchDTO struct {
	MatchID      int64   `json:"match_id"`
	JobID        int64   `json:"job_id"`
	ContractorID int64   `json:"contractor_id"`
	EquipmentID  int64   `json:"equipment_id"`
	Status       string  `json:"status"`
	FinalPrice   *int64  `json:"final_price,omitempty"`
	WorkNotes    *string `json:"work_notes,omitempty"`

	MatchedAt     string  `json:"matched_at"`
	DepartedAt    *string `json:"departed_at,omitempty"`
	ArrivedAt     *string `json:"arrived_at,omitempty"`
	WorkStartedAt *string `json:"work_started_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`

	ContractorSignedAt *string `json:"contractor_signed_at,omitempty"`
	ClientName         *string `json:"client_name,omitempty"`
	ClientSignedAt     *string `json:"client_signed_at,omitempty"`
	OrgConfirmed       bool    `json:"org_confirmed"`
	OrgSignerName      *string `json:"org_signer_name,omitempty"`
	OrgConfirmedAt     *string `json:"org_confirmed_at,omitempty"`

	CancelledAt  *string `json:"cancelled_at,omitempty"`
	CancelReason *string `json:"cancel_reason,omitempty"`
	ReportURL    *string `json:"report_url,omitempty"`
}

type RatingDTO struct {
	RatingID     int64  `json:"rating_id"`
	MatchID      int64  `json:"match_id"`
	ContractorID int64  `json:"contractor_id"`
	Score        int    `json:"score"`
	Comment      string `json:"comment,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func NewJobDTO(j domain.Job) JobDTO {
	return JobDTO{
		JobID:          j.ID,
		RequesterID:    j.RequesterID,
		OrganizationID: j.OrganizationID,
		SiteAddress:    j.SiteAddress,
		SiteDetail:     j.SiteDetail,
		Latitude:       j.Latitude,
		Longitude:      j.Longitude,
		ScheduledAt:    formatTime(j.ScheduledAt),
		EquipmentType:  string(j.EquipmentType),
		MinHeight:      j.MinHeight,
		MinRating:      j.MinRating,
		Description:    j.Description,
		Price:          j.Price,
		PriceType:      string(j.PriceType),
		Urgent:         j.Urgent,
		Status:         string(j.Status),
		CreatedAt:      formatTime(j.CreatedAt),
		UpdatedAt:      formatTime(j.UpdatedAt),
	}
}

func NewJobDTOs(jobs []domain.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = NewJobDTO(j)
	}
	return out
}

// NewMatchDTO renders a match. Signature images are never echoed back.
func NewMatchDTO(m domain.Match) MatchDTO {
	return MatchDTO{
		MatchID:            m.ID,
		JobID:              m.JobID,
		ContractorID:       m.ContractorID,
		EquipmentID:        m.EquipmentID,
		Status:             string(m.Status),
		FinalPrice:         m.FinalPrice,
		WorkNotes:          m.WorkNotes,
		MatchedAt:          formatTime(m.MatchedAt),
		DepartedAt:         formatTimePtr(m.DepartedAt),
		ArrivedAt:          formatTimePtr(m.ArrivedAt),
		WorkStartedAt:      formatTimePtr(m.WorkStartedAt),
		CompletedAt:        formatTimePtr(m.CompletedAt),
		ContractorSignedAt: formatTimePtr(m.ContractorSignedAt),
		ClientName:         m.ClientName,
		ClientSignedAt:     formatTimePtr(m.ClientSignedAt),
		OrgConfirmed:       m.OrgConfirmed,
		OrgSignerName:      m.OrgSignerName,
		OrgConfirmedAt:     formatTimePtr(m.OrgConfirmedAt),
		CancelledAt:        formatTimePtr(m.CancelledAt),
		CancelReason:       m.CancelReason,
		ReportURL:          m.ReportURL,
	}
}

func NewRatingDTO(r domain.Rating) RatingDTO {
	return RatingDTO{
		RatingID:     r.ID,
		MatchID:      r.MatchID,
		ContractorID: r.ContractorID,
		Score:        r.Score,
		Comment:      r.Comment,
		CreatedAt:    formatTime(r.CreatedAt),
	}
}
