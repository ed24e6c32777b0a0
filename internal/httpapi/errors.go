package httpapi

import (
	"encoding/json"
	"net/http"
)

// apiError is the JSON error body.
type apiError struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeBadJSON  = "bad_json"
	codeBadQuery = "bad_query"
	codeNotFound = "not_found"
	codeInternal = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}
