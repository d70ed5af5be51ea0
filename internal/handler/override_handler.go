package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/oncall-api/internal/dto"
	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
	"github.com/noah-isme/oncall-api/pkg/response"
)

type overrideService interface {
	MonthlyOverrides(ctx context.Context, month string) (*models.MonthlyOverrideSet, error)
	StoreMonthlyOverrides(ctx context.Context, month string, overrides []models.Override) error
}

// OverrideHandler exposes monthly override management.
type OverrideHandler struct {
	service overrideService
}

// NewOverrideHandler builds a new handler.
func NewOverrideHandler(service overrideService) *OverrideHandler {
	return &OverrideHandler{service: service}
}

// Get godoc
// @Summary Overrides stored for a month
// @Tags Overrides
// @Produce json
// @Param month path string true "Month (YYYY-MM)"
// @Success 200 {object} response.Envelope
// @Router /overrides/{month} [get]
func (h *OverrideHandler) Get(c *gin.Context) {
	set, err := h.service.MonthlyOverrides(c.Request.Context(), c.Param("month"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if set == nil {
		set = &models.MonthlyOverrideSet{Month: c.Param("month"), Overrides: []models.Override{}}
	}
	response.JSON(c, http.StatusOK, set)
}

// Put godoc
// @Summary Replace the overrides stored for a month
// @Tags Overrides
// @Accept json
// @Produce json
// @Param month path string true "Month (YYYY-MM)"
// @Param payload body dto.PutOverridesRequest true "Override set"
// @Success 200 {object} response.Envelope
// @Router /overrides/{month} [put]
func (h *OverrideHandler) Put(c *gin.Context) {
	month := c.Param("month")

	var req dto.PutOverridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}

	overrides := make([]models.Override, 0, len(req.Overrides))
	for _, entry := range req.Overrides {
		if entry.Date[:7] != month {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "override date "+entry.Date+" is outside month "+month))
			return
		}
		overrides = append(overrides, models.Override{
			Date:           entry.Date,
			LayerKey:       entry.LayerKey,
			Person:         entry.Person,
			Reason:         entry.Reason,
			StartTime:      entry.StartTime,
			EndTime:        entry.EndTime,
			OriginalPerson: entry.OriginalPerson,
		})
	}

	if err := h.service.StoreMonthlyOverrides(c.Request.Context(), month, overrides); err != nil {
		response.Error(c, err)
		return
	}

	set, err := h.service.MonthlyOverrides(c.Request.Context(), month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, set)
}
