package testutil

import (
	"context"
	"net/http"

	"planhub/internal/platform/middleware"
)

// WithRequestID adds a request ID to the request context, simulating what the
// RequestID middleware does for incoming requests.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	req.Header.Set("X-Request-ID", requestID)
	ctx := context.WithValue(req.Context(), middleware.ContextKeyRequestID, requestID)
	return req.WithContext(ctx)
}
