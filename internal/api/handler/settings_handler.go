package handler

import (
	"log/slog"
	"net/http"

	"github.com/cho-y-j/dispatch/internal/api/dto"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the runtime business settings to administrators
type SettingsHandler struct {
	logger   *slog.Logger
	provider *settings.Provider
	writer   SettingsWriter
}

func NewSettingsHandler(deps *Dependencies) *SettingsHandler {
	return &SettingsHandler{
		logger:   deps.Logger.With("handler", "settings"),
		provider: deps.Settings,
		writer:   deps.SettingsStore,
	}
}

// Get handles GET /api/v1/settings and answers the effective values.
func (h *SettingsHandler) Get(c *gin.Context) {
	if _, ok := requireAdmin(c, h.logger); !ok {
		return
	}
	c.JSON(http.StatusOK, dto.SettingsResponse{Settings: h.provider.Current().Map()})
}

// Put handles PUT /api/v1/settings/:key. The new value is stored and the
// snapshot reloaded before answering, so the response reflects what the
// service now uses.
func (h *SettingsHandler) Put(c *gin.Context) {
	p, ok := requireAdmin(c, h.logger)
	if !ok {
		return
	}

	key := c.Param("key")
	if !settings.Known(key) {
		writeError(c, h.logger, domain.Invalid("unknown setting %q", key))
		return
	}
	if h.writer == nil {
		writeError(c, h.logger, domain.Invalid("settings are read-only in this deployment"))
		return
	}

	var req dto.SettingRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.writer.PutSetting(ctx, key, req.Value); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if _, err := h.provider.Reload(ctx); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.Info("Setting updated",
		slog.String("key", key),
		slog.String("value", req.Value),
		slog.Int64("changed_by", p.ID),
	)
	c.JSON(http.StatusOK, dto.SettingsResponse{Settings: h.provider.Current().Map()})
}
