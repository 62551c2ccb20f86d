package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// MessageHeaders builds broker headers correlating a published event with
// the request and trace that produced it. Empty values are omitted.
func MessageHeaders(ctx context.Context, requestID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		headers["trace_id"] = sc.TraceID().String()
		headers["span_id"] = sc.SpanID().String()
	}
	return headers
}
