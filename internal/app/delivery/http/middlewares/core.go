package middlewares

import (
	"context"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/utils"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type responseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytesWritten += n
	return n, err
}

// Logging writes one line per request once the handler returns. Server errors
// log at error, client errors at warn, and health checks only at debug.
func (m *Middlewares) Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			requestID, _ := r.Context().Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
			isClientRequestID, _ := r.Context().Value(constvars.CONTEXT_IS_CLIENT_REQUEST_ID_KEY).(bool)
			fields := []zap.Field{
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Bool("is_client_request_id", isClientRequestID),
				zap.String(constvars.LoggingMethodKey, r.Method),
				zap.String(constvars.LoggingEndpointKey, r.URL.Path),
				zap.String(constvars.LoggingRemoteAddrKey, r.RemoteAddr),
				zap.String(constvars.LoggingUserAgentKey, r.UserAgent()),
				zap.Int(constvars.LoggingStatusCodeKey, rec.statusCode),
				zap.Int(constvars.LoggingResponseLengthKey, rec.bytesWritten),
				zap.Duration(constvars.LoggingDurationKey, time.Since(start)),
			}

			switch {
			case r.URL.Path == constvars.HealthPath:
				logger.Debug("API request completed", fields...)
			case rec.statusCode >= http.StatusInternalServerError:
				logger.Error("API request completed", fields...)
			case rec.statusCode >= http.StatusBadRequest:
				logger.Warn("API request completed", fields...)
			default:
				logger.Info("API request completed", fields...)
			}
		})
	}
}

// RequestIDMiddleware propagates the caller's X-Request-ID, or mints one, so
// every log line and published event of the request can be correlated.
func (m *Middlewares) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(constvars.HeaderXRequestID)
		isClientRequestID := true

		if requestID == "" {
			requestID = utils.GenerateRequestID()
			isClientRequestID = false
		}

		ctx := context.WithValue(r.Context(), constvars.CONTEXT_REQUEST_ID_KEY, requestID)
		ctx = context.WithValue(ctx, constvars.CONTEXT_IS_CLIENT_REQUEST_ID_KEY, isClientRequestID)

		w.Header().Set(constvars.HeaderXRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
