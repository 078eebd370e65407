package features

import (
	"math"
)

// Vector layout version produced by Extract. Checkpointed policy state
// records this so a restored policy can detect a feature-space mismatch.
const Version = 1

// Dim is the fixed context vector dimension for Version 1.
const Dim = 8

// payloadScaleBytes is the payload size at which dimension 1 saturates.
const payloadScaleBytes = 1 << 20 // 1 MiB

// maxTurns is the conversation depth at which dimension 2 saturates.
const maxTurns = 32

// Content types with a dedicated indicator dimension. Anything else maps to
// the all-zero indicator block.
const (
	ContentTypeText       = "text"
	ContentTypeCode       = "code"
	ContentTypeMultimodal = "multimodal"
)

// RequestMetadata is the raw, caller-supplied description of a request.
// The extractor validates it and projects it into a Context.
type RequestMetadata struct {
	// TenantID identifies the tenant making the request. Required.
	TenantID string

	// RequestID uniquely identifies the request. Required; the two-phase
	// decide/report protocol is keyed by it.
	RequestID string

	// ContentType categorizes the request payload ("text", "code",
	// "multimodal", ...). Required.
	ContentType string

	// PayloadBytes is the request payload size. Must be >= 0.
	PayloadBytes int64

	// PriorTurns is the number of earlier turns in the same conversation.
	// Must be >= 0.
	PriorTurns int

	// Complexity is an optional caller-supplied difficulty hint in [0,1].
	Complexity float64

	// Priority is an optional urgency hint in [0,1].
	Priority float64
}

// Context is the immutable policy input derived from one request. Callers
// and policies must treat Vector as read-only; Clone exists for the rare
// case where a mutable copy is needed.
type Context struct {
	// TenantID identifies the tenant the request belongs to.
	TenantID string

	// RequestID uniquely identifies the request.
	RequestID string

	// ContentType is the validated content type.
	ContentType string

	// Vector is the fixed-length numeric feature vector.
	Vector []float64

	// Version is the vector layout version (see Version).
	Version int
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	dup := *c
	dup.Vector = make([]float64, len(c.Vector))
	copy(dup.Vector, c.Vector)
	return &dup
}

// Magnitude is a scalar summary of the context used by cost functions: the
// payload-size dimension, which dominates per-request processing cost.
func (c *Context) Magnitude() float64 {
	if len(c.Vector) <= 1 {
		return 0
	}
	return c.Vector[1]
}

// Extract validates metadata and projects it into a fixed-length context
// vector. It is deterministic and performs no I/O.
func Extract(meta RequestMetadata) (*Context, error) {
	if meta.TenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "is required"}
	}
	if meta.RequestID == "" {
		return nil, &ValidationError{Field: "request_id", Reason: "is required"}
	}
	if meta.ContentType == "" {
		return nil, &ValidationError{Field: "content_type", Reason: "is required"}
	}
	if meta.PayloadBytes < 0 {
		return nil, &ValidationError{Field: "payload_bytes", Reason: "must be >= 0"}
	}
	if meta.PriorTurns < 0 {
		return nil, &ValidationError{Field: "prior_turns", Reason: "must be >= 0"}
	}
	if err := checkUnit("complexity", meta.Complexity); err != nil {
		return nil, err
	}
	if err := checkUnit("priority", meta.Priority); err != nil {
		return nil, err
	}

	v := make([]float64, Dim)
	v[0] = 1.0
	v[1] = logScale(float64(meta.PayloadBytes), payloadScaleBytes)
	v[2] = math.Min(float64(meta.PriorTurns)/maxTurns, 1.0)
	v[3] = meta.Complexity
	v[4] = meta.Priority
	switch meta.ContentType {
	case ContentTypeText:
		v[5] = 1.0
	case ContentTypeCode:
		v[6] = 1.0
	case ContentTypeMultimodal:
		v[7] = 1.0
	}

	return &Context{
		TenantID:    meta.TenantID,
		RequestID:   meta.RequestID,
		ContentType: meta.ContentType,
		Vector:      v,
		Version:     Version,
	}, nil
}

// checkUnit rejects hints outside [0,1] and non-finite values, which would
// otherwise poison policy math downstream.
func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be finite"}
	}
	if v < 0 || v > 1 {
		return &ValidationError{Field: field, Reason: "must be in [0,1]"}
	}
	return nil
}

// logScale maps v onto [0,1] with logarithmic compression, saturating at
// scale.
func logScale(v, scale float64) float64 {
	if v <= 0 {
		return 0
	}
	s := math.Log1p(v) / math.Log1p(scale)
	return math.Min(s, 1.0)
}
