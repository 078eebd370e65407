package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Routing keys describe the decision phase, outcome
// keys the learn phase.
const (
	AttrTenantID  = attribute.Key("tenant.id")
	AttrRequestID = attribute.Key("request.id")

	AttrArmID          = attribute.Key("routing.arm_id")
	AttrPolicyID       = attribute.Key("routing.policy_id")
	AttrVariantID      = attribute.Key("routing.variant_id")
	AttrUtility        = attribute.Key("routing.utility")
	AttrConfidence     = attribute.Key("routing.confidence")
	AttrExplored       = attribute.Key("routing.explored")
	AttrFallback       = attribute.Key("routing.fallback")
	AttrCatalogVersion = attribute.Key("routing.catalog_version")

	AttrQuality   = attribute.Key("outcome.quality")
	AttrLatencyMS = attribute.Key("outcome.latency_ms")
	AttrCost      = attribute.Key("outcome.cost")
	AttrSuccess   = attribute.Key("outcome.success")
	AttrReward    = attribute.Key("outcome.reward")
)

// DecisionAttributes groups the attributes describing a routing decision.
func DecisionAttributes(armID, policyID, variantID string, utility, confidence float64, explored, fallback bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrArmID.String(armID),
		AttrPolicyID.String(policyID),
		AttrVariantID.String(variantID),
		AttrUtility.Float64(utility),
		AttrConfidence.Float64(confidence),
		AttrExplored.Bool(explored),
		AttrFallback.Bool(fallback),
	}
}

// OutcomeAttributes groups the attributes describing an observed outcome.
func OutcomeAttributes(quality, latencyMS, cost float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrQuality.Float64(quality),
		AttrLatencyMS.Float64(latencyMS),
		AttrCost.Float64(cost),
		AttrSuccess.Bool(success),
	}
}

// AnnotateRequest tags the current span with request identity. No-op when
// no span is recording.
func AnnotateRequest(ctx context.Context, tenantID, requestID string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		AttrTenantID.String(tenantID),
		AttrRequestID.String(requestID),
	)
}

// AnnotateDecision tags the current span with the selected arm and the
// selection internals.
func AnnotateDecision(ctx context.Context, armID, policyID, variantID string, utility, confidence float64, explored, fallback bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(DecisionAttributes(armID, policyID, variantID, utility, confidence, explored, fallback)...)
}

// AnnotateOutcome tags the current span with the reported outcome.
func AnnotateOutcome(ctx context.Context, requestID string, quality, latencyMS, cost float64, success bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(AttrRequestID.String(requestID))
	span.SetAttributes(OutcomeAttributes(quality, latencyMS, cost, success)...)
}

// RecordError records err on the current span and marks the span status
// as error. No-op for nil errors or when no span is recording.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
