package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/conference-timetable/internal/models"
	appErrors "github.com/noah-isme/conference-timetable/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error sends an error response converting the error to the common structure.
// Rejected timetable commits also list every violation under meta.violations.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Error: appErr}

	var verr *models.ViolationError
	if errors.As(err, &verr) {
		envelope.Meta = map[string]interface{}{"violations": violationViews(verr.Violations)}
	}
	var serr *models.StructuralError
	if errors.As(err, &serr) {
		envelope.Meta = map[string]interface{}{"structural": serr}
	}
	c.JSON(appErr.Status, envelope)
}

// ViolationView is the wire form of a violation.
type ViolationView struct {
	models.Violation
	Message string `json:"message"`
}

func violationViews(violations []models.Violation) []ViolationView {
	views := make([]ViolationView, 0, len(violations))
	for _, v := range violations {
		views = append(views, ViolationView{Violation: v, Message: v.Message()})
	}
	return views
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
