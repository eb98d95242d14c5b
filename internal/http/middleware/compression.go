package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE routes event-stream requests around the given
// compression middleware. A buffering compressor would hold back events
// until its window fills, defeating live delivery.
func SkipCompressionForSSE(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
