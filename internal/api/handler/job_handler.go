package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cho-y-j/dispatch/internal/api/dto"
	"github.com/cho-y-j/dispatch/internal/dispatch"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/report"
	"github.com/gin-gonic/gin"
)

// JobHandler handles job, match and signature requests
type JobHandler struct {
	logger   *slog.Logger
	dispatch *dispatch.Service
	reports  *report.Service
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger.With("handler", "jobs"),
		dispatch: deps.Dispatch,
		reports:  deps.Reports,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		badRequest(c, "scheduled_at must be an RFC3339 timestamp")
		return
	}

	job, err := h.dispatch.CreateJob(c.Request.Context(), PrincipalFrom(c), dispatch.CreateJobInput{
		SiteAddress:   req.SiteAddress,
		SiteDetail:    req.SiteDetail,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		ScheduledAt:   scheduledAt,
		EquipmentType: domain.EquipmentType(req.EquipmentType),
		MinHeight:     req.MinHeight,
		MinRating:     req.MinRating,
		Description:   req.Description,
		Price:         req.Price,
		PriceType:     domain.PriceType(req.PriceType),
		Urgent:        req.Urgent,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// ListOpenJobs handles GET /api/v1/jobs/open
func (h *JobHandler) ListOpenJobs(c *gin.Context) {
	contractorID, ok := requireContractor(c, h.logger)
	if !ok {
		return
	}

	var req dto.ListOpenJobsRequest
	if !bindQuery(c, h.logger, &req) {
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}

	jobs, err := h.dispatch.ListOpenJobs(c.Request.Context(), contractorID, dispatch.OpenJobsQuery{
		EquipmentType: domain.EquipmentType(req.EquipmentType),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		RadiusKm:      req.RadiusKm,
		Limit:         req.Limit,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: dto.NewJobDTOs(jobs)})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	job, err := h.dispatch.GetJob(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// GetMatch handles GET /api/v1/jobs/:job_id/match
func (h *JobHandler) GetMatch(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	m, err := h.dispatch.GetMatch(c.Request.Context(), PrincipalFrom(c), jobID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMatchDTO(m))
}

// AcceptJob handles POST /api/v1/jobs/:job_id/accept
func (h *JobHandler) AcceptJob(c *gin.Context) {
	contractorID, ok := requireContractor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.AcceptJobRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	m, err := h.dispatch.Accept(c.Request.Context(), contractorID, jobID, req.EquipmentID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMatchDTO(m))
}

type transitionFunc func(ctx context.Context, contractorID, jobID int64) (domain.Match, error)

// Transition returns the handler for one contractor-driven lifecycle step,
// e.g. POST /api/v1/jobs/:job_id/depart.
func (h *JobHandler) Transition(step transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		contractorID, ok := requireContractor(c, h.logger)
		if !ok {
			return
		}
		jobID, ok := pathID(c, "job_id")
		if !ok {
			return
		}

		m, err := step(c.Request.Context(), contractorID, jobID)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewMatchDTO(m))
	}
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.CancelJobRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	job, err := h.dispatch.Cancel(c.Request.Context(), PrincipalFrom(c), jobID, dispatch.CancelInput{
		Reason: req.Reason,
		NoShow: req.NoShow,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// SignAsContractor handles POST /api/v1/jobs/:job_id/signatures/contractor
func (h *JobHandler) SignAsContractor(c *gin.Context) {
	contractorID, ok := requireContractor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.ContractorSignatureRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	m, err := h.dispatch.SignAsContractor(c.Request.Context(), contractorID, jobID, dispatch.ContractorSignature{
		Signature:  req.Signature,
		FinalPrice: req.FinalPrice,
		WorkNotes:  req.WorkNotes,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMatchDTO(m))
}

// SignAsClient handles POST /public/jobs/:job_id/signatures/client. The
// on-site signer has no account, so the route carries no identity.
func (h *JobHandler) SignAsClient(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.ClientSignatureRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	m, err := h.dispatch.SignAsClient(c.Request.Context(), jobID, dispatch.ClientSignature{
		Signature:  req.Signature,
		SignerName: req.SignerName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMatchDTO(m))
}

// ConfirmAsOrganization handles POST /api/v1/jobs/:job_id/signatures/organization
func (h *JobHandler) ConfirmAsOrganization(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.OrganizationConfirmationRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	m, err := h.dispatch.ConfirmAsOrganization(c.Request.Context(), PrincipalFrom(c), jobID, dispatch.OrganizationConfirmation{
		Signature:  req.Signature,
		SignerName: req.SignerName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMatchDTO(m))
}

// RateMatch handles POST /api/v1/jobs/:job_id/rating
func (h *JobHandler) RateMatch(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req dto.RateMatchRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	r, err := h.dispatch.Rate(c.Request.Context(), PrincipalFrom(c), jobID, req.Score, req.Comment)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewRatingDTO(r))
}

// RegenerateReport handles POST /api/v1/jobs/:job_id/report
func (h *JobHandler) RegenerateReport(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	url, err := h.reports.Regenerate(c.Request.Context(), PrincipalFrom(c), jobID)
	if errors.Is(err, report.ErrUnavailable) {
		h.logger.Warn("Report renderer unavailable", slog.Int64("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "report renderer unavailable", Code: "REPORT_UNAVAILABLE"})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ReportResponse{JobID: jobID, ReportURL: url})
}
