package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every non-2xx API answer. Notice carries
// a message meant to be shown to the user as is.
type ErrorResponse struct {
	Error  string `json:"error"`
	Notice string `json:"notice,omitempty"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	//nolint:wrapcheck
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse. Encoding failures are ignored since
// the status line is already sent.
func WriteError(w http.ResponseWriter, status int, message, notice string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Notice: notice})
}
