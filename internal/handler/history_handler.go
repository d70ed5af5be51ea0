package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/oncall-api/internal/dto"
	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/internal/service"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
	"github.com/noah-isme/oncall-api/pkg/response"
)

type ledgerService interface {
	AssignmentFor(ctx context.Context, date, layerKey string) (*models.HistoricalAssignment, error)
	ScheduleFor(ctx context.Context, date string) (*models.ScheduleVersion, *models.ScheduleDocument, error)
	VersionHistory(ctx context.Context, limit int) ([]models.ScheduleVersion, error)
	CreateVersion(ctx context.Context, description, actor string) (*models.ScheduleVersion, error)
	Cleanup(ctx context.Context, retentionMonths int) (*service.CleanupResult, error)
}

type exportService interface {
	MonthlyRoster(ctx context.Context, month, format string) (*service.ExportResult, error)
}

// HistoryHandler exposes the versioned historical ledger.
type HistoryHandler struct {
	ledger ledgerService
	export exportService
}

// NewHistoryHandler builds a new handler.
func NewHistoryHandler(ledger ledgerService, export exportService) *HistoryHandler {
	return &HistoryHandler{ledger: ledger, export: export}
}

// Assignment godoc
// @Summary Who was on call for a past date and layer
// @Tags History
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param layer query string true "Layer key"
// @Success 200 {object} response.Envelope
// @Router /history/assignments [get]
func (h *HistoryHandler) Assignment(c *gin.Context) {
	var req dto.AssignmentRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "date and layer are required"))
		return
	}

	rec, err := h.ledger.AssignmentFor(c.Request.Context(), req.Date, req.LayerKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AssignmentResponse{
		Date:       rec.Date,
		LayerKey:   rec.LayerKey,
		Person:     rec.Person,
		VersionID:  rec.VersionID,
		IsOverride: rec.OverrideID != nil,
		FrozenAt:   rec.CreatedAt,
	})
}

// Schedule godoc
// @Summary Schedule document effective for a past date
// @Tags History
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /history/schedule [get]
func (h *HistoryHandler) Schedule(c *gin.Context) {
	date := c.Query("date")
	version, doc, err := h.ledger.ScheduleFor(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode schedule document"))
		return
	}
	response.JSON(c, http.StatusOK, dto.ScheduleResponse{
		Version:  versionToDTO(version),
		Document: raw,
	})
}

// Versions godoc
// @Summary List schedule versions, newest first
// @Tags History
// @Produce json
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {object} response.Envelope
// @Router /history/versions [get]
func (h *HistoryHandler) Versions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw, 200)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	versions, err := h.ledger.VersionHistory(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.VersionResponse, 0, len(versions))
	for i := range versions {
		out = append(out, versionToDTO(&versions[i]))
	}
	response.JSON(c, http.StatusOK, out)
}

// CreateVersion godoc
// @Summary Snapshot the live schedule document as a new version
// @Tags History
// @Accept json
// @Produce json
// @Param payload body dto.CreateVersionRequest true "Version metadata"
// @Success 201 {object} response.Envelope
// @Router /history/versions [post]
func (h *HistoryHandler) CreateVersion(c *gin.Context) {
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid version payload"))
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "api"
	}

	version, err := h.ledger.CreateVersion(c.Request.Context(), req.Description, req.CreatedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, versionToDTO(version))
}

// Cleanup godoc
// @Summary Delete history older than the retention window
// @Tags History
// @Accept json
// @Produce json
// @Param payload body dto.CleanupRequest false "Retention override"
// @Success 200 {object} response.Envelope
// @Router /history/cleanup [post]
func (h *HistoryHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cleanup payload"))
			return
		}
	}

	result, err := h.ledger.Cleanup(c.Request.Context(), req.RetentionMonths)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Export godoc
// @Summary Download a month of frozen history as CSV or PDF
// @Tags History
// @Produce text/csv
// @Produce application/pdf
// @Param month query string true "Month (YYYY-MM)"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} binary
// @Router /history/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	month := c.Query("month")
	format := c.DefaultQuery("format", "csv")

	result, err := h.export.MonthlyRoster(c.Request.Context(), month, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func versionToDTO(v *models.ScheduleVersion) dto.VersionResponse {
	return dto.VersionResponse{
		ID:            v.ID,
		EffectiveDate: v.EffectiveDate,
		ContentHash:   v.ContentHash,
		Description:   v.Description,
		CreatedBy:     v.CreatedBy,
		Active:        v.Active,
		CreatedAt:     v.CreatedAt,
	}
}
