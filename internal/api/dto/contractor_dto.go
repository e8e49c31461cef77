package dto

import "github.com/cho-y-j/dispatch/internal/domain"

type EquipmentRequest struct {
	Type          string   `json:"type" binding:"required"`
	Model         string   `json:"model"`
	Tonnage       *float64 `json:"tonnage"`
	MaxHeight     *float64 `json:"max_height"`
	VehicleNumber string   `json:"vehicle_number"`
	Status        string   `json:"status"`
}

type RegisterContractorRequest struct {
	Name                       string             `json:"name" binding:"required"`
	Phone                      string             `json:"phone"`
	BusinessRegistrationNumber string             `json:"business_registration_number" binding:"required"`
	BusinessName               string             `json:"business_name"`
	LicenseNumber              string             `json:"license_number"`
	Equipment                  []EquipmentRequest `json:"equipment"`
}

type RejectContractorRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type UpdateGradeRequest struct {
	Grade  int    `json:"grade" binding:"required"`
	Reason string `json:"reason"`
}

type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type EquipmentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type ContractorDTO struct {
	ContractorID        int64    `json:"contractor_id"`
	Name                string   `json:"name"`
	Phone               string   `json:"phone,omitempty"`
	BusinessName        string   `json:"business_name,omitempty"`
	VerificationStatus  string   `json:"verification_status"`
	VerificationMessage *string  `json:"verification_message,omitempty"`
	Grade               int      `json:"grade"`
	Rating              float64  `json:"rating"`
	RatingCount         int      `json:"rating_count"`
	WarningCount        int      `json:"warning_count"`
	Active              bool     `json:"active"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LocationUpdatedAt   *string  `json:"location_updated_at,omitempty"`
	ApprovedAt          *string  `json:"approved_at,omitempty"`
	CreatedAt           string   `json:"created_at"`
}

type EquipmentDTO struct {
	EquipmentID   int64    `json:"equipment_id"`
	ContractorID  int64    `json:"contractor_id"`
	Type          string   `json:"type"`
	Model         string   `json:"model,omitempty"`
	Tonnage       *float64 `json:"tonnage,omitempty"`
	MaxHeight     *float64 `json:"max_height,omitempty"`
	VehicleNumber string   `json:"vehicle_number,omitempty"`
	Status        string   `json:"status"`
}

type GradeHistoryDTO struct {
	PreviousGrade int    `json:"previous_grade"`
	NewGrade      int    `json:"new_grade"`
	Reason        string `json:"reason,omitempty"`
	ChangedBy     int64  `json:"changed_by"`
	CreatedAt     string `json:"created_at"`
}

func NewContractorDTO(c domain.Contractor) ContractorDTO {
	return ContractorDTO{
		ContractorID:        c.ID,
		Name:                c.Name,
		Phone:               c.Phone,
		BusinessName:        c.BusinessName,
		VerificationStatus:  string(c.VerificationStatus),
		VerificationMessage: c.VerificationMessage,
		Grade:               c.Grade,
		Rating:              c.Rating,
		RatingCount:         c.RatingCount,
		WarningCount:        c.WarningCount,
		Active:              c.Active,
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		LocationUpdatedAt:   formatTimePtr(c.LocationUpdatedAt),
		ApprovedAt:          formatTimePtr(c.ApprovedAt),
		CreatedAt:           formatTime(c.CreatedAt),
	}
}

func NewEquipmentDTO(e domain.Equipment) EquipmentDTO {
	return EquipmentDTO{
		EquipmentID:   e.ID,
		ContractorID:  e.ContractorID,
		Type:          string(e.Type),
		Model:         e.Model,
		Tonnage:       e.Tonnage,
		MaxHeight:     e.MaxHeight,
		VehicleNumber: e.VehicleNumber,
		Status:        string(e.Status),
	}
}

func NewEquipmentDTOs(units []domain.Equipment) []EquipmentDTO {
	out := make([]EquipmentDTO, len(units))
	for i, e := range units {
		out[i] = NewEquipmentDTO(e)
	}
	return out
}

func NewGradeHistoryDTOs(entries []domain.GradeHistory) []GradeHistoryDTO {
	out := make([]GradeHistoryDTO, len(entries))
	for i, h := range entries {
		out[i] = GradeHistoryDTO{
			PreviousGrade: h.PreviousGrade,
			NewGrade:      h.NewGrade,
			Reason:        h.Reason,
			ChangedBy:     h.ChangedBy,
			CreatedAt:     formatTime(h.CreatedAt),
		}
	}
	return out
}
