// Package response writes the API's uniform JSON envelopes: single objects
// under "data", collections under "data" plus pagination "meta", and errors
// under "error" with a machine-readable code.
package response

import (
	"encoding/json"
	"net/http"
)

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a 200 with the payload wrapped in the data envelope.
func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, map[string]any{"data": data})
}

// Created writes a 201 data envelope.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, map[string]any{"data": data})
}

// Accepted writes a 202 data envelope, used when work continues in the
// background after the response.
func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, map[string]any{"data": data})
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Collection writes a 200 with items and pagination metadata.
func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	write(w, http.StatusOK, map[string]any{"data": data, "meta": meta})
}

// Error writes the error envelope with the given status and code.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, map[string]any{"error": apiError{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
