package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeAlreadySettled    = "ALREADY_SETTLED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, types.ErrValidationFailed):
		ValidationFailed(c, err.Error())
	case errors.Is(err, types.ErrAlreadySettled):
		AlreadySettled(c, "Order already paid")
	case errors.Is(err, types.ErrInvalidStatus):
		BadRequest(c, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		handleError(c, err, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	JSON(c, status, data)
}

// JSON sends a successful response with an explicit status
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NoContent sends a 204 with no body
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// ValidationFailed sends a 400 response for malformed input
func ValidationFailed(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// AlreadySettled sends a 400 response for a repeated settlement
func AlreadySettled(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeAlreadySettled, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// handleError logs the cause and answers with a generic 500
func handleError(c *gin.Context, err error, message string) {
	log.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("request failed")

	InternalError(c, message)
}

// Fail logs err and sends a 500 with a caller supplied message
func Fail(c *gin.Context, err error, message string) {
	handleError(c, err, message)
}
