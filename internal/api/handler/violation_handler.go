package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cho-y-j/dispatch/internal/api/dto"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/gin-gonic/gin"
)

// ViolationHandler handles violations and suspensions. Every route is
// admin-only.
type ViolationHandler struct {
	logger     *slog.Logger
	violations *violation.Escalator
}

func NewViolationHandler(deps *Dependencies) *ViolationHandler {
	return &ViolationHandler{
		logger:     deps.Logger.With("handler", "violations"),
		violations: deps.Violations,
	}
}

// actorFilter turns optional actor_type/actor_id query parameters into an
// actor; both or neither must be present.
func actorFilter(actorType string, actorID int64) (*domain.Actor, error) {
	if actorType == "" && actorID == 0 {
		return nil, nil
	}
	a := domain.Actor{Type: domain.ActorType(actorType), ID: actorID}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Issue handles POST /api/v1/violations
func (h *ViolationHandler) Issue(c *gin.Context) {
	var req dto.IssueViolationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	out, err := h.violations.Issue(c.Request.Context(), PrincipalFrom(c), violation.Input{
		Actor:    domain.Actor{Type: domain.ActorType(req.ActorType), ID: req.ActorID},
		Category: domain.WarningType(req.Category),
		Reason:   req.Reason,
		JobID:    req.JobID,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp := dto.IssueViolationResponse{
		Violation:    dto.NewViolationDTO(out.Violation),
		WarningCount: out.WarningCount,
	}
	if out.Suspension != nil {
		s := dto.NewSuspensionDTO(*out.Suspension)
		resp.Suspension = &s
	}
	c.JSON(http.StatusCreated, resp)
}

// ListViolations handles GET /api/v1/violations
func (h *ViolationHandler) ListViolations(c *gin.Context) {
	if _, ok := requireAdmin(c, h.logger); !ok {
		return
	}

	var req dto.ListViolationsRequest
	if !bindQuery(c, h.logger, &req) {
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeViolationCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "invalid cursor")
		return
	}

	actor, err := actorFilter(req.ActorType, req.ActorID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// one extra row tells whether another page exists
	list, err := h.violations.ListViolations(c.Request.Context(), store.ViolationQuery{
		Actor: actor,
		After: cursor,
		Limit: req.PageSize + 1,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	hasMore := len(list) > req.PageSize
	if hasMore {
		list = list[:req.PageSize]
	}

	resp := dto.ListViolationsResponse{Violations: make([]dto.ViolationDTO, len(list))}
	for i, v := range list {
		resp.Violations[i] = dto.NewViolationDTO(v)
	}
	if hasMore {
		last := list[len(list)-1]
		resp.NextCursor = EncodeViolationCursor(store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}

// Suspend handles POST /api/v1/suspensions
func (h *ViolationHandler) Suspend(c *gin.Context) {
	var req dto.SuspendRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	in := violation.SuspendInput{
		Actor:  domain.Actor{Type: domain.ActorType(req.ActorType), ID: req.ActorID},
		Kind:   domain.SuspensionKind(req.Kind),
		Reason: req.Reason,
		Days:   req.Days,
	}
	if req.EndAt != "" {
		endAt, err := time.Parse(time.RFC3339, req.EndAt)
		if err != nil {
			badRequest(c, "end_at must be an RFC3339 timestamp")
			return
		}
		in.EndAt = &endAt
	}

	s, err := h.violations.Suspend(c.Request.Context(), PrincipalFrom(c), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuspensionDTO(s))
}

// Lift handles POST /api/v1/suspensions/:suspension_id/lift
func (h *ViolationHandler) Lift(c *gin.Context) {
	id, ok := pathID(c, "suspension_id")
	if !ok {
		return
	}

	s, err := h.violations.Lift(c.Request.Context(), PrincipalFrom(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuspensionDTO(s))
}

// ListSuspensions handles GET /api/v1/suspensions
func (h *ViolationHandler) ListSuspensions(c *gin.Context) {
	if _, ok := requireAdmin(c, h.logger); !ok {
		return
	}

	var req dto.ListSuspensionsRequest
	if !bindQuery(c, h.logger, &req) {
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}

	actor, err := actorFilter(req.ActorType, req.ActorID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	list, err := h.violations.ListSuspensions(c.Request.Context(), store.SuspensionQuery{
		Actor:      actor,
		ActiveOnly: req.ActiveOnly,
		Limit:      req.Limit,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspensions": dto.NewSuspensionDTOs(list)})
}
