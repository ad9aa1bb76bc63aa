// Package httpapi provides the small JSON request/response vocabulary shared
// by the three sidecar HTTP servers.
//
// Every error response has the shape {"detail": "..."} so that callers (and
// the other sidecars) can rely on one error format across services.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds JSON request bodies. Voice uploads use multipart and
// are bounded separately by the handler.
const maxBodyBytes = 1 << 20

// errorBody is the uniform JSON error payload.
type errorBody struct {
	Detail string `json:"detail"`
}

// WriteJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// Error writes a {"detail": ...} error response with the given status.
func Error(w http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(w, status, errorBody{Detail: fmt.Sprintf(format, args...)})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing garbage. The body size is capped at 1 MiB.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
