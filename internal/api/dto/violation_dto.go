package dto

import "github.com/cho-y-j/dispatch/internal/domain"

type IssueViolationRequest struct {
	ActorType string `json:"actor_type" binding:"required"`
	ActorID   int64  `json:"actor_id" binding:"required"`
	Category  string `json:"category" binding:"required"`
	Reason    string `json:"reason"`
	JobID     *int64 `json:"job_id"`
}

type ListViolationsRequest struct {
	ActorType string `form:"actor_type"`
	ActorID   int64  `form:"actor_id"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListViolationsResponse struct {
	Violations []ViolationDTO `json:"violations"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type SuspendRequest struct {
	ActorType string `json:"actor_type" binding:"required"`
	ActorID   int64  `json:"actor_id" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	Reason    string `json:"reason"`
	EndAt     string `json:"end_at"`
	Days      int    `json:"days"`
}

type ListSuspensionsRequest struct {
	ActorType  string `form:"actor_type"`
	ActorID    int64  `form:"actor_id"`
	ActiveOnly bool   `form:"active_only"`
	Limit      int    `form:"limit"`
}

type ViolationDTO struct {
	ViolationID int64  `json:"violation_id"`
	ActorType   string `json:"actor_type"`
	ActorID     int64  `json:"actor_id"`
	Category    string `json:"category"`
	Reason      string `json:"reason,omitempty"`
	JobID       *int64 `json:"job_id,omitempty"`
	IssuedBy    int64  `json:"issued_by"`
	CreatedAt   string `json:"created_at"`
}

type SuspensionDTO struct {
	SuspensionID int64   `json:"suspension_id"`
	ActorType    string  `json:"actor_type"`
	ActorID      int64   `json:"actor_id"`
	Kind         string  `json:"kind"`
	Reason       string  `json:"reason,omitempty"`
	StartAt      string  `json:"start_at"`
	EndAt        *string `json:"end_at,omitempty"`
	Active       bool    `json:"active"`
	Automatic    bool    `json:"automatic"`
	IssuedBy     int64   `json:"issued_by"`
	LiftedBy     *int64  `json:"lifted_by,omitempty"`
	LiftedAt     *string `json:"lifted_at,omitempty"`
}

type IssueViolationResponse struct {
	Violation    ViolationDTO   `json:"violation"`
	WarningCount int            `json:"warning_count"`
	Suspension   *SuspensionDTO `json:"suspension,omitempty"`
}

type SettingRequest struct {
	Value string `json:"value" binding:"required"`
}

type SettingsResponse struct {
	Settings map[string]string `json:"settings"`
}

func NewViolationDTO(v domain.Violation) ViolationDTO {
	return ViolationDTO{
		ViolationID: v.ID,
		ActorType:   string(v.ActorType),
		ActorID:     v.ActorID,
		Category:    string(v.Category),
		Reason:      v.Reason,
		JobID:       v.JobID,
		IssuedBy:    v.IssuedBy,
		CreatedAt:   formatTime(v.CreatedAt),
	}
}

func NewSuspensionDTO(s domain.Suspension) SuspensionDTO {
	return SuspensionDTO{
		SuspensionID: s.ID,
		ActorType:    string(s.ActorType),
		ActorID:      s.ActorID,
		Kind:         string(s.Kind),
		Reason:       s.Reason,
		StartAt:      formatTime(s.StartAt),
		EndAt:        formatTimePtr(s.EndAt),
		Active:       s.Active,
		Automatic:    s.Automatic,
		IssuedBy:     s.IssuedBy,
		LiftedBy:     s.LiftedBy,
		LiftedAt:     formatTimePtr(s.LiftedAt),
	}
}

func NewSuspensionDTOs(list []domain.Suspension) []SuspensionDTO {
	out := make([]SuspensionDTO, len(list))
	for i, s := range list {
		out[i] = NewSuspensionDTO(s)
	}
	return out
}
