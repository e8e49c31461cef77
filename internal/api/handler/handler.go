package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cho-y-j/dispatch/internal/contractor"
	"github.com/cho-y-j/dispatch/internal/dispatch"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/report"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/gin-gonic/gin"
)

// SettingsWriter persists one runtime setting. It is nil when settings are
// read from a file.
type SettingsWriter interface {
	PutSetting(ctx context.Context, key, value string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Dispatch      *dispatch.Service
	Contractors   *contractor.Service
	Violations    *violation.Escalator
	Reports       *report.Service
	Settings      *settings.Provider
	SettingsStore SettingsWriter

	// HealthCheck reports backing store health; nil means always healthy.
	HealthCheck func(ctx context.Context) error
	// PoolStats, when set, is echoed in the health body.
	PoolStats func() string

	PublicRequestsPerSecond float64
	PublicBurst             int
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body. Domain errors carry their own
// status and code; anything else is logged and hidden behind a 500.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	if kind == 0 {
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
		return
	}
	c.JSON(statusOf(kind), errorResponse{Error: err.Error(), Code: domain.CodeOf(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: message, Code: domain.ErrInvalidArgument.Code})
}

// pathID parses a positive int64 path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, logger *slog.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Debug("Invalid request body", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func bindQuery(c *gin.Context, logger *slog.Logger, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		logger.Debug("Invalid query parameters", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		badRequest(c, "invalid query parameters: "+err.Error())
		return false
	}
	return true
}

// requireAdmin answers 403 unless the caller is an administrator.
func requireAdmin(c *gin.Context, logger *slog.Logger) (domain.Principal, bool) {
	p := PrincipalFrom(c)
	if !p.IsAdmin() {
		writeError(c, logger, domain.ErrNotAllowed)
		return p, false
	}
	return p, true
}

// requireContractor answers 403 unless the caller acts as a contractor and
// returns the contractor id.
func requireContractor(c *gin.Context, logger *slog.Logger) (int64, bool) {
	p := PrincipalFrom(c)
	if p.Role != domain.RoleContractor {
		writeError(c, logger, domain.ErrNotAllowed)
		return 0, false
	}
	return p.ID, true
}

// requireSelfOrAdmin answers 403 unless the caller is contractor id itself
// or an administrator.
func requireSelfOrAdmin(c *gin.Context, logger *slog.Logger, id int64) bool {
	p := PrincipalFrom(c)
	if p.IsAdmin() || (p.Role == domain.RoleContractor && p.ID == id) {
		return true
	}
	writeError(c, logger, domain.ErrNotAllowed)
	return false
}
