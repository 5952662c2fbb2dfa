package testutil

import (
	"net/http"

	"verifiedai/pkg/requestcontext"
)

// WithSessionID attaches a browser session ID to the request context,
// as the session middleware would.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(requestcontext.WithSessionID(req.Context(), sessionID))
}
