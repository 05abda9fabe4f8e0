package httpmiddleware

import (
	"github.com/emanueledeamicis/OpenShort/gee"
	"go.opentelemetry.io/otel/trace"
)

// TraceName renames the otelhttp server span after the matched route.
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		span := trace.SpanFromContext(ctx.Req.Context())
		span.SetName(ctx.Method + " " + ctx.RoutePattern)
		ctx.Next()
	}
}
