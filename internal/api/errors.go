package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/middleware"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code          string                  `json:"code"`
	Error         string                  `json:"error"`
	Validation    *domain.ValidationError `json:"validation,omitempty"`
	CorrelationID string                  `json:"correlation_id"`
	Timestamp     string                  `json:"timestamp"`
}

func (s *Server) handleServiceError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrPatientNotFound):
		s.writeError(c, http.StatusNotFound, domain.ErrCodeNotFound, err.Error(), nil)
	case errors.As(err, &validation):
		s.writeError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error(), validation)
	default:
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Unhandled request error")
		s.writeError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "internal server error", nil)
	}
}

func (s *Server) writeError(c *gin.Context, status int, code, message string, validation *domain.ValidationError) {
	c.JSON(status, ErrorResponse{
		Code:          code,
		Error:         message,
		Validation:    validation,
		CorrelationID: c.GetString(middleware.CorrelationIDKey),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
