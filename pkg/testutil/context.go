package testutil

import (
	"net/http"
	"time"

	"kycgate/pkg/requestcontext"
)

// WithReviewer marks the request as carrying an authenticated reviewer, as
// the reviewer middleware would.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), reviewerID))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID sets the correlation ID.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
