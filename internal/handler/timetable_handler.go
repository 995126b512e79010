package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/conference-timetable/internal/dto"
	"github.com/noah-isme/conference-timetable/internal/middleware"
	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/service"
	appErrors "github.com/noah-isme/conference-timetable/pkg/errors"
	"github.com/noah-isme/conference-timetable/pkg/response"
)

type timetableService interface {
	Apply(ctx context.Context, req dto.ApplyTimetableRequest) (*dto.ApplyTimetableResponse, error)
	GetTimetable(ctx context.Context, eventID string) (*dto.TimetableResponse, error)
	Audit(ctx context.Context, eventID string) (*models.AuditReport, bool, error)
}

type violationExporter interface {
	ExportViolations(ctx context.Context, eventID, format string) (*service.ExportResult, error)
}

type sweepTrigger interface {
	Sweep(ctx context.Context, trigger string) (*service.SweepResult, error)
}

// TimetableHandler exposes timetable transactions and audits.
type TimetableHandler struct {
	timetables timetableService
	exports    violationExporter
	sweeps     sweepTrigger
}

// NewTimetableHandler constructs the handler. exports and sweeps may be nil
// when those features are disabled.
func NewTimetableHandler(timetables timetableService, exports violationExporter, sweeps sweepTrigger) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, exports: exports, sweeps: sweeps}
}

// GetTimetable godoc
// @Summary Persisted timetable of an event
// @Tags Timetable
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/timetable [get]
func (h *TimetableHandler) GetTimetable(c *gin.Context) {
	result, err := h.timetables.GetTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Violations godoc
// @Summary Audit an event timetable
// @Description Validates every persisted entry of the event against the timetable invariants. Reports are cached until a commit touches the event.
// @Tags Timetable
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/timetable/violations [get]
func (h *TimetableHandler) Violations(c *gin.Context) {
	report, hit, err := h.timetables.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, dto.NewAuditReportResponse(*report), middleware.ExtractMeta(c))
}

// Apply godoc
// @Summary Apply a timetable transaction
// @Description Stages every operation and commits them atomically. A commit that breaks any invariant is rejected with 422 and the full violation list in meta.violations.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ApplyTimetableRequest true "Operations"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/transactions [post]
func (h *TimetableHandler) Apply(c *gin.Context) {
	var req dto.ApplyTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.timetables.Apply(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "tx_id", result.TransactionID)
	status := http.StatusOK
	if createdAny(result) {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, middleware.ExtractMeta(c))
}

func createdAny(result *dto.ApplyTimetableResponse) bool {
	for _, event := range result.Events {
		if len(event.Created) > 0 {
			return true
		}
	}
	return false
}

// ExportViolations godoc
// @Summary Download a violation report
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Event ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /events/{id}/timetable/violations/export [get]
func (h *TimetableHandler) ExportViolations(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "violation exports are disabled"))
		return
	}
	result, err := h.exports.ExportViolations(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Sweep godoc
// @Summary Run an audit sweep now
// @Description Audits every event on the background worker queue and waits for the result.
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetable/audits/sweep [post]
func (h *TimetableHandler) Sweep(c *gin.Context) {
	if h.sweeps == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "audit sweep is disabled"))
		return
	}
	result, err := h.sweeps.Sweep(c.Request.Context(), service.SweepTriggerManual)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}
