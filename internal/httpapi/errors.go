package httpapi

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

func WriteError(w http.ResponseWriter, traceID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message: message,
			Type:    errType,
			Code:    code,
			TraceID: traceID,
		},
	})
}

func WriteBadRequestError(w http.ResponseWriter, traceID, message string) {
	WriteError(w, traceID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteNotFoundError(w http.ResponseWriter, traceID, message string) {
	WriteError(w, traceID, http.StatusNotFound, "not_found_error", "not_found", message)
}

func WriteInternalError(w http.ResponseWriter, traceID, message string) {
	WriteError(w, traceID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, traceID, message string) {
	WriteError(w, traceID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}
