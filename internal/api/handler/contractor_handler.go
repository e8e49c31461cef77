package handler

import (
	"log/slog"
	"net/http"

	"github.com/cho-y-j/dispatch/internal/api/dto"
	"github.com/cho-y-j/dispatch/internal/contractor"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

// ContractorHandler handles contractor registration, review and equipment
type ContractorHandler struct {
	logger      *slog.Logger
	contractors *contractor.Service
}

func NewContractorHandler(deps *Dependencies) *ContractorHandler {
	return &ContractorHandler{
		logger:      deps.Logger.With("handler", "contractors"),
		contractors: deps.Contractors,
	}
}

func equipmentInput(req dto.EquipmentRequest) contractor.EquipmentInput {
	return contractor.EquipmentInput{
		Type:          domain.EquipmentType(req.Type),
		Model:         req.Model,
		Tonnage:       req.Tonnage,
		MaxHeight:     req.MaxHeight,
		VehicleNumber: req.VehicleNumber,
		Status:        domain.EquipmentStatus(req.Status),
	}
}

// Register handles POST /api/v1/contractors
func (h *ContractorHandler) Register(c *gin.Context) {
	var req dto.RegisterContractorRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	in := contractor.RegisterInput{
		Name:                       req.Name,
		Phone:                      req.Phone,
		BusinessRegistrationNumber: req.BusinessRegistrationNumber,
		BusinessName:               req.BusinessName,
		LicenseNumber:              req.LicenseNumber,
	}
	for _, e := range req.Equipment {
		in.Equipment = append(in.Equipment, equipmentInput(e))
	}

	ct, err := h.contractors.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewContractorDTO(ct))
}

// Get handles GET /api/v1/contractors/:contractor_id
func (h *ContractorHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}

	ct, err := h.contractors.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// Approve handles POST /api/v1/contractors/:contractor_id/approve
func (h *ContractorHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}

	ct, err := h.contractors.Approve(c.Request.Context(), PrincipalFrom(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// Reject handles POST /api/v1/contractors/:contractor_id/reject
func (h *ContractorHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}

	var req dto.RejectContractorRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	ct, err := h.contractors.Reject(c.Request.Context(), PrincipalFrom(c), id, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// UpdateGrade handles PUT /api/v1/contractors/:contractor_id/grade
func (h *ContractorHandler) UpdateGrade(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}

	var req dto.UpdateGradeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	ct, err := h.contractors.UpdateGrade(c.Request.Context(), PrincipalFrom(c), id, req.Grade, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// GradeHistory handles GET /api/v1/contractors/:contractor_id/grade-history
func (h *ContractorHandler) GradeHistory(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}
	if !requireSelfOrAdmin(c, h.logger, id) {
		return
	}

	entries, err := h.contractors.GradeHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": dto.NewGradeHistoryDTOs(entries)})
}

// UpdateLocation handles PUT /api/v1/contractors/:contractor_id/location
func (h *ContractorHandler) UpdateLocation(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}
	if !requireSelfOrAdmin(c, h.logger, id) {
		return
	}

	var req dto.UpdateLocationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	ct, err := h.contractors.UpdateLocation(c.Request.Context(), id, *req.Latitude, *req.Longitude)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// SetActive handles PUT /api/v1/contractors/:contractor_id/active
func (h *ContractorHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}
	if !requireSelfOrAdmin(c, h.logger, id) {
		return
	}

	var req dto.SetActiveRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	ct, err := h.contractors.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewContractorDTO(ct))
}

// ListEquipment handles GET /api/v1/contractors/:contractor_id/equipment
func (h *ContractorHandler) ListEquipment(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}

	units, err := h.contractors.ListEquipment(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipment": dto.NewEquipmentDTOs(units)})
}

// AddEquipment handles POST /api/v1/contractors/:contractor_id/equipment
func (h *ContractorHandler) AddEquipment(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}
	if !requireSelfOrAdmin(c, h.logger, id) {
		return
	}

	var req dto.EquipmentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	e, err := h.contractors.AddEquipment(c.Request.Context(), id, equipmentInput(req))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewEquipmentDTO(e))
}

// SetEquipmentStatus handles PUT /api/v1/contractors/:contractor_id/equipment/:equipment_id/status
func (h *ContractorHandler) SetEquipmentStatus(c *gin.Context) {
	id, ok := pathID(c, "contractor_id")
	if !ok {
		return
	}
	equipmentID, ok := pathID(c, "equipment_id")
	if !ok {
		return
	}
	if !requireSelfOrAdmin(c, h.logger, id) {
		return
	}

	var req dto.EquipmentStatusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	e, err := h.contractors.SetEquipmentStatus(c.Request.Context(), id, equipmentID, domain.EquipmentStatus(req.Status))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewEquipmentDTO(e))
}
