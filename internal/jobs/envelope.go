// Package jobs implements the per-jobId state entity of spec §4.6: the
// authoritative JobState, exclusive WebSocket ownership, throttled
// persistence, and the lifecycle/cleanup alarm. Every operation on one
// entity is serialized by its own mutex (spec §9's "addressable actor"
// pattern, implemented here as a per-key mutex rather than a goroutine+
// channel actor, since the operation set is small and synchronous).
package jobs

import (
	"time"

	"github.com/bookwyrm/core/internal/domain"
)

// EnvelopeVersion is the WebSocket wire-envelope schema version (spec §6).
const EnvelopeVersion = "1.0.0"

// EnvelopeType enumerates the WebSocket frame types.
type EnvelopeType string

const (
	EnvelopeProgress EnvelopeType = "job_progress"
	EnvelopeComplete EnvelopeType = "job_complete"
	EnvelopeError    EnvelopeType = "error"
	EnvelopeReadyAck EnvelopeType = "ready_ack"
)

// Envelope is the versioned WebSocket wire format of spec §6.
type Envelope struct {
	Type      EnvelopeType       `json:"type"`
	JobID     string             `json:"jobId"`
	Pipeline  domain.JobPipeline `json:"pipeline"`
	Timestamp int64              `json:"timestamp"`
	Version   string             `json:"version"`
	Payload   any                `json:"payload"`
}

func newEnvelope(typ EnvelopeType, jobID string, pipeline domain.JobPipeline, payload any) Envelope {
	return Envelope{
		Type:      typ,
		JobID:     jobID,
		Pipeline:  pipeline,
		Timestamp: time.Now().UnixMilli(),
		Version:   EnvelopeVersion,
		Payload:   payload,
	}
}

// NewReadyAck builds the {type:"ready_ack"} reply the WebSocket handler
// sends once the client's {type:"ready"} frame has been observed (spec
// §4.6's ready handshake).
func NewReadyAck(jobID string, pipeline domain.JobPipeline) Envelope {
	return newEnvelope(EnvelopeReadyAck, jobID, pipeline, nil)
}

// ProgressPayload is the job_progress payload shape.
type ProgressPayload struct {
	Progress       float64 `json:"progress"`
	Status         string  `json:"status"`
	ProcessedCount int     `json:"processedCount,omitempty"`
	TotalCount     int     `json:"totalCount,omitempty"`
}

// ErrorPayload is the error frame payload shape.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
