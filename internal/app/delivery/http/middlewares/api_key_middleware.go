package middlewares

import (
	"context"
	"crypto/subtle"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/utils"
	"net/http"

	"go.uber.org/zap"
)

// RequireAPIKey guards the export endpoints. With no key configured every
// request passes, which is how local development runs.
func (m *Middlewares) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := m.InternalConfig.App.APIKey
		if expected == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(constvars.HeaderXAPIKey)
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			requestID, _ := r.Context().Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
			utils.LogSecurityEvent(m.Log, "api_key_rejected", requestID, "warning",
				zap.String(constvars.LoggingRemoteAddrKey, r.RemoteAddr),
				zap.String(constvars.LoggingEndpointKey, r.URL.Path),
				zap.Bool("api_key_present", apiKey != ""),
			)
			utils.BuildErrorResponse(m.Log, w, exceptions.ErrInvalidAPIKey(nil))
			return
		}

		ctx := context.WithValue(r.Context(), constvars.CONTEXT_API_KEY_AUTH_KEY, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
