// Package envelope builds the canonical {data,metadata} / {error} HTTP
// response bodies used across the whole API surface.
package envelope

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bookwyrm/core/internal/apierrors"
)

// Metadata carries the optional second half of a success envelope: cache
// provenance, pagination, and timing information. Fields are omitted when
// zero so responses stay small.
type Metadata struct {
	CacheStatus string `json:"cacheStatus,omitempty"`
	Count       int    `json:"count,omitempty"`
	TookMs      int64  `json:"tookMs,omitempty"`
}

type success struct {
	Data     any       `json:"data"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// ErrorBody is the machine-readable error payload placed under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type failure struct {
	Error ErrorBody `json:"error"`
}

// Write serializes data as a successful envelope.
func Write(w http.ResponseWriter, status int, data any, meta *Metadata) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(success{Data: data, Metadata: meta})
}

// WriteError serializes err as a failure envelope, deriving the HTTP status
// and machine-readable code from its concrete type where possible.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	var ce *apierrors.CodedErr
	var s apierrors.StatusErr
	var pe *apierrors.ProviderError
	switch {
	case errors.As(err, &ce):
		status = ce.Status()
		code = ce.Code()
	case errors.As(err, &pe):
		status = http.StatusBadGateway
		code = pe.Code()
		if pe.Kind == apierrors.KindNotFound {
			status = http.StatusNotFound
		}
	case errors.As(err, &s):
		status = s.Status()
		code = codeForStatus(status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(failure{Error: ErrorBody{Code: code, Message: err.Error()}})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
