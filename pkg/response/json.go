package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	domainerrors "github.com/bookclub/bookclub/internal/errors"
)

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

// APIError represents an error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains pagination and other metadata
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewMeta builds pagination metadata.
func NewMeta(page, perPage, total int) *Meta {
	return &Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

// PageParams reads page and per_page query parameters, defaulting to 1 and 20
// and capping per_page at 100.
func PageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// JSON sends a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// JSONWithMeta sends a JSON response with pagination metadata
func JSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	write(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, status int, code, message string) {
	write(w, status, APIResponse{
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// FromError maps a domain error to its HTTP status. Named failures report
// their reason (NOT_YOUR_TURN, PICK_ALREADY_OPEN, ...) as the code; untyped
// errors are logged and hidden behind a 500.
func FromError(w http.ResponseWriter, err error) {
	var domainErr *domainerrors.Error
	if !domainerrors.As(err, &domainErr) {
		zap.L().Error("unhandled error", zap.Error(err))
		InternalError(w, "Internal server error")
		return
	}

	code := domainErr.Reason
	if code == "" {
		code = string(domainErr.Code)
	}
	if domainErr.HTTPStatus() >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("code", string(domainErr.Code)), zap.Error(err))
	}

	write(w, domainErr.HTTPStatus(), APIResponse{
		Error: &APIError{
			Code:    code,
			Message: domainErr.Message,
			Details: domainErr.Details,
		},
	})
}

func write(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", message)
}
