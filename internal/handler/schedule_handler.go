package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/pkg/response"
)

type scheduleReloader interface {
	Reload() error
}

type versionEnsurer interface {
	EnsureVersion(ctx context.Context, actor, description string) (*models.ScheduleVersion, bool, error)
}

type schedulerProbe interface {
	Ready() bool
	ArmedCount() int
}

// ScheduleHandler exposes schedule source administration and health probes.
type ScheduleHandler struct {
	store     scheduleReloader
	ledger    versionEnsurer
	scheduler schedulerProbe
}

// NewScheduleHandler builds a new handler.
func NewScheduleHandler(store scheduleReloader, ledger versionEnsurer, scheduler schedulerProbe) *ScheduleHandler {
	return &ScheduleHandler{store: store, ledger: ledger, scheduler: scheduler}
}

// Reload godoc
// @Summary Reload the schedule source from disk
// @Tags Schedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule/reload [post]
func (h *ScheduleHandler) Reload(c *gin.Context) {
	if err := h.store.Reload(); err != nil {
		response.Error(c, err)
		return
	}

	version, created, err := h.ledger.EnsureVersion(c.Request.Context(), "reload", "captured on schedule reload")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"reloaded":        true,
		"version_id":      version.ID,
		"version_created": created,
	})
}

// Health godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *ScheduleHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe: schedule loaded and scheduler operating
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ready [get]
func (h *ScheduleHandler) Ready(c *gin.Context) {
	if !h.scheduler.Ready() {
		response.JSON(c, http.StatusServiceUnavailable, gin.H{
			"status": "no schedule document loaded",
		})
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"status":       "ready",
		"timers_armed": h.scheduler.ArmedCount(),
	})
}
