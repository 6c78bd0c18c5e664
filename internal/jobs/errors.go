package jobs

import "errors"

// Sentinel errors matched with errors.Is by the HTTP/WS handlers to derive
// status codes and error codes (spec §4.6, §6, §7).
var (
	ErrConflictingInit      = errors.New("job already initialized with different parameters")
	ErrTerminalState        = errors.New("job is in a terminal state")
	ErrRefreshWindowNotOpen = errors.New("token refresh window is not open")
	ErrInvalidToken         = errors.New("auth token is invalid or expired")
	ErrInvalidPhotoIndex    = errors.New("photo index out of range")
	ErrNotFound             = errors.New("job not found")
	ErrWrongPipeline        = errors.New("operation does not match job's pipeline")
)
