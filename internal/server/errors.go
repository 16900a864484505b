package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/radiojournal/backend/internal/journal"
	"go.uber.org/zap"
)

const (
	codeNotFound         = "NOT_FOUND"
	codeValidationFailed = "VALIDATION_FAILED"
	codeBadInput         = "BAD_INPUT"
	codeConditionFailed  = "CONDITION_FAILED"
	codeStoreUnavailable = "STORE_UNAVAILABLE"
	codeInternalError    = "INTERNAL_ERROR"
	codeUnauthorized     = "UNAUTHORIZED"

	messageNotFound = "The resource you requested could not be found"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// respondError maps a journal error onto the API error body. Only failures
// that are not the caller's fault are logged here; the journal has already
// logged the details.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, journal.ErrNotFound):
		abortWithError(c, http.StatusNotFound, codeNotFound, messageNotFound)
	case errors.Is(err, journal.ErrValidationFailed):
		abortWithError(c, http.StatusUnprocessableEntity, codeValidationFailed, validationMessage(err))
	case errors.Is(err, journal.ErrConditionFailed):
		abortWithError(c, http.StatusServiceUnavailable, codeConditionFailed, "The resource changed concurrently, retry the request")
	case errors.Is(err, journal.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.String("route", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, codeStoreUnavailable, "The journal store is unavailable")
	default:
		h.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, codeInternalError, "Internal error")
	}
}

// validationMessage strips the service code and sentinel prefix so callers see
// only the human readable reason.
func validationMessage(err error) string {
	var serviceErr *journal.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Unwrap() != nil {
		err = serviceErr.Unwrap()
	}
	message := strings.TrimPrefix(err.Error(), journal.ErrValidationFailed.Error()+": ")
	if message == "" || message == err.Error() {
		return "Validation failed"
	}
	return message
}

func badInput(c *gin.Context, message string) {
	abortWithError(c, http.StatusBadRequest, codeBadInput, message)
}
