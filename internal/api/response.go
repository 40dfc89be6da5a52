package api

import (
	"encoding/json"
	"net/http"

	"go.povoice.tech/internal/common/apperr"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PagedResponse represents a paginated response
type PagedResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// WriteAppError writes an error response with the status, code, and
// message carried by the error's kind. Unknown errors map to 500.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	WriteError(w, appErr.HTTPStatus(), appErr.Code, appErr.Message)
}

// DecodeJSON decodes JSON from a request body
func DecodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// NewPagedResponse creates a new paged response
func NewPagedResponse[T any](data []T, page, pageSize int, totalItems int64) PagedResponse[T] {
	totalPages := int(totalItems) / pageSize
	if int(totalItems)%pageSize > 0 {
		totalPages++
	}

	if data == nil {
		data = []T{}
	}

	return PagedResponse[T]{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}
