package testutil

import (
	"net/http"

	"registro/pkg/requestcontext"
)

// WithSubmittedBy stamps the caller identity on a request context, simulating
// what the auth middleware does for authenticated requests.
func WithSubmittedBy(req *http.Request, submittedBy string) *http.Request {
	ctx := requestcontext.WithSubmittedBy(req.Context(), submittedBy)
	return req.WithContext(ctx)
}

// WithRequestID stamps a correlation ID on a request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}
