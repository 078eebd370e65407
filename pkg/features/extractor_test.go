package features

import (
	"errors"
	"math"
	"testing"
)

func validMeta() RequestMetadata {
	return RequestMetadata{
		TenantID:     "tenant-1",
		RequestID:    "req-1",
		ContentType:  ContentTypeText,
		PayloadBytes: 2048,
		PriorTurns:   4,
		Complexity:   0.5,
		Priority:     0.25,
	}
}

func TestExtractValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*RequestMetadata)
		wantField string
	}{
		{
			name:      "missing tenant",
			mutate:    func(m *RequestMetadata) { m.TenantID = "" },
			wantField: "tenant_id",
		},
		{
			name:      "missing request id",
			mutate:    func(m *RequestMetadata) { m.RequestID = "" },
			wantField: "request_id",
		},
		{
			name:      "missing content type",
			mutate:    func(m *RequestMetadata) { m.ContentType = "" },
			wantField: "content_type",
		},
		{
			name:      "negative payload",
			mutate:    func(m *RequestMetadata) { m.PayloadBytes = -1 },
			wantField: "payload_bytes",
		},
		{
			name:      "negative turns",
			mutate:    func(m *RequestMetadata) { m.PriorTurns = -3 },
			wantField: "prior_turns",
		},
		{
			name:      "complexity out of range",
			mutate:    func(m *RequestMetadata) { m.Complexity = 1.5 },
			wantField: "complexity",
		},
		{
			name:      "complexity NaN",
			mutate:    func(m *RequestMetadata) { m.Complexity = math.NaN() },
			wantField: "complexity",
		},
		{
			name:      "priority infinite",
			mutate:    func(m *RequestMetadata) { m.Priority = math.Inf(1) },
			wantField: "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validMeta()
			tt.mutate(&meta)

			ctx, err := Extract(meta)
			if ctx != nil {
				t.Errorf("Extract() returned a context alongside an error")
			}
			if err == nil {
				t.Fatalf("Extract() error = nil, want validation error for %q", tt.wantField)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("errors.Is(err, ErrValidation) = false, want true")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error is %T, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	meta := validMeta()

	a, err := Extract(meta)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	b, err := Extract(meta)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(a.Vector) != Dim || len(b.Vector) != Dim {
		t.Fatalf("vector length = %d/%d, want %d", len(a.Vector), len(b.Vector), Dim)
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Errorf("vector[%d] = %v vs %v, want identical values", i, a.Vector[i], b.Vector[i])
		}
	}
	if a.Version != Version {
		t.Errorf("Version = %d, want %d", a.Version, Version)
	}
}

func TestExtractVectorLayout(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantHotDim  int // -1 means no indicator dimension is set
	}{
		{name: "text", contentType: ContentTypeText, wantHotDim: 5},
		{name: "code", contentType: ContentTypeCode, wantHotDim: 6},
		{name: "multimodal", contentType: ContentTypeMultimodal, wantHotDim: 7},
		{name: "unknown", contentType: "audio", wantHotDim: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validMeta()
			meta.ContentType = tt.contentType

			ctx, err := Extract(meta)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}

			if ctx.Vector[0] != 1.0 {
				t.Errorf("bias dimension = %v, want 1.0", ctx.Vector[0])
			}
			for dim := 5; dim <= 7; dim++ {
				want := 0.0
				if dim == tt.wantHotDim {
					want = 1.0
				}
				if ctx.Vector[dim] != want {
					t.Errorf("vector[%d] = %v, want %v", dim, ctx.Vector[dim], want)
				}
			}
		})
	}
}

func TestExtractScaling(t *testing.T) {
	meta := validMeta()
	meta.PayloadBytes = 0
	ctx, err := Extract(meta)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ctx.Vector[1] != 0 {
		t.Errorf("payload dimension for empty payload = %v, want 0", ctx.Vector[1])
	}

	meta.PayloadBytes = 16 << 20 // beyond the saturation point
	ctx, err = Extract(meta)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ctx.Vector[1] != 1.0 {
		t.Errorf("payload dimension past saturation = %v, want 1.0", ctx.Vector[1])
	}

	meta.PriorTurns = 100
	ctx, err = Extract(meta)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ctx.Vector[2] != 1.0 {
		t.Errorf("turns dimension past saturation = %v, want 1.0", ctx.Vector[2])
	}
}

func TestContextClone(t *testing.T) {
	ctx, err := Extract(validMeta())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	dup := ctx.Clone()
	dup.Vector[0] = 42

	if ctx.Vector[0] == 42 {
		t.Errorf("mutating the clone changed the original vector")
	}
}
