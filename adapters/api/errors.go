package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hypolab/internal/binding"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/lifecycle"
)

// writeError maps service errors onto status codes. Tagged lifecycle and
// execution failures keep their structure in the body.
func (s *Server) writeError(c *gin.Context, err error) {
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		s.metrics.refusals.WithLabelValues(string(te.Code)).Inc()
		c.JSON(http.StatusConflict, gin.H{"error": te.Message, "transition_error": te})
		return
	}

	var ee *binding.ExecutionError
	if errors.As(err, &ee) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ee.Error(), "errors": ee.Errors})
		return
	}

	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.CodeValidationError, apperrors.CodeInvalidHistory:
		status = http.StatusUnprocessableEntity
	case apperrors.CodeConfigInvalid:
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}
