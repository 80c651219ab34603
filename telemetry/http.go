package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient creates an HTTP client that records a client span
// per request and propagates trace context to downstream services via
// W3C TraceContext headers.
//
// The returned client is safe for concurrent use and should be reused
// across requests for connection pooling benefits. If baseTransport is
// nil, http.DefaultTransport is wrapped.
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
	}
}
