package middlewares

import (
	"net/http"
)

const defaultBodyLimitInMegabyte = 2

// BodyLimit caps request bodies; reads past the limit fail with
// *http.MaxBytesError, which controllers map to 413.
func (m *Middlewares) BodyLimit(next http.Handler) http.Handler {
	limit := int64(m.InternalConfig.App.RequestBodyLimitInMegabyte)
	if limit <= 0 {
		limit = defaultBodyLimitInMegabyte
	}
	limit <<= 20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
