package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request, named after the matched chi
// route once routing has completed, e.g. "GET /api/v1/payments/{id}"
// rather than the concrete path.
//
// otelhttp renames the span itself through the formatter when the router
// reports a pattern, so both paths resolve the name the same way.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			trace.SpanFromContext(r.Context()).SetName(spanName(service, r))
		})
		return otelhttp.NewHandler(named, service, otelhttp.WithSpanNameFormatter(spanName))
	}
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + routePattern(r)
}
