package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/connectcg/friendsync/internal/logging"
)

// RequestIDHeader carries the client-generated id of each outbound call.
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags outbound requests with a request id and logs their outcome.
// The context logger wins over base so calls log under the caller's span.
func RequestLogger(base *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
				r = r.Clone(r.Context())
				r.Header.Set(RequestIDHeader, requestID)
			}

			logger := logging.FromContext(r.Context())
			if base != nil && logging.TraceIDFromContext(r.Context()) == "" {
				logger = base
			}
			reqLogger := logger.With(
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			resp, err := next.RoundTrip(r)
			if err != nil {
				reqLogger.Warn("request failed",
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			reqLogger.Debug("request completed",
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", time.Since(start)),
			)
			return resp, nil
		})
	}
}
