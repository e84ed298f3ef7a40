package middleware

import (
	"net/http"
	"strings"
)

// BodyLimitOverride raises the body limit for one route prefix, e.g. uploads.
type BodyLimitOverride struct {
	PathPrefix string
	MaxBytes   int64
}

// LimitBodyBytes caps request bodies at defaultMax unless the path matches an
// override. Prefixes match with or without the /api mount point.
func LimitBodyBytes(defaultMax int64, overrides ...BodyLimitOverride) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := defaultMax
			path := r.URL.Path
			apiPath := strings.TrimPrefix(path, "/api")
			for _, override := range overrides {
				if override.PathPrefix == "" || override.MaxBytes <= 0 {
					continue
				}
				if strings.HasPrefix(path, override.PathPrefix) || strings.HasPrefix(apiPath, override.PathPrefix) {
					maxBytes = override.MaxBytes
					break
				}
			}
			if r.ContentLength > maxBytes && maxBytes > 0 {
				writeError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
