package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/oncall-api/internal/dto"
	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
	"github.com/noah-isme/oncall-api/pkg/response"
)

type oncallService interface {
	AssignmentAt(instant time.Time) (*models.Layer, *models.Assignment, error)
	Upcoming(now time.Time, n int) []models.UpcomingAssignment
}

// OnCallHandler exposes live on-call resolution endpoints.
type OnCallHandler struct {
	service oncallService
	now     func() time.Time
}

// NewOnCallHandler builds a new handler.
func NewOnCallHandler(service oncallService) *OnCallHandler {
	return &OnCallHandler{service: service, now: time.Now}
}

// Current godoc
// @Summary Who is on call right now
// @Tags OnCall
// @Produce json
// @Param at query string false "Evaluate at instant (RFC3339), defaults to now"
// @Success 200 {object} response.Envelope
// @Router /oncall/current [get]
func (h *OnCallHandler) Current(c *gin.Context) {
	at := h.now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at must be RFC3339"))
			return
		}
		at = parsed
	}

	layer, assignment, err := h.service.AssignmentAt(at)
	if err != nil {
		response.Error(c, err)
		return
	}
	if layer == nil {
		response.JSON(c, http.StatusOK, dto.OffShiftResponse{OnShift: false, EvaluatedAt: at})
		return
	}
	response.JSON(c, http.StatusOK, dto.CurrentOnCallResponse{
		LayerKey:    layer.Key,
		LayerName:   layer.Name,
		Person:      assignment.Person,
		IsOverride:  assignment.IsOverride,
		Reason:      assignment.Reason,
		EvaluatedAt: at,
	})
}

// Upcoming godoc
// @Summary Next shift occurrences across all layers
// @Tags OnCall
// @Produce json
// @Param count query int false "Number of entries (default 3)"
// @Success 200 {object} response.Envelope
// @Router /oncall/upcoming [get]
func (h *OnCallHandler) Upcoming(c *gin.Context) {
	count := 0
	if raw := c.Query("count"); raw != "" {
		parsed, err := parsePositiveInt(raw, 20)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "count must be a positive integer"))
			return
		}
		count = parsed
	}

	entries := h.service.Upcoming(h.now(), count)
	out := make([]dto.UpcomingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.UpcomingEntry{LayerKey: e.LayerKey, Person: e.Person, Start: e.Start})
	}
	response.JSON(c, http.StatusOK, dto.UpcomingResponse{Upcoming: out})
}
