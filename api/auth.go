/*
auth.go - API key authentication middleware

PURPOSE:
  Guards the /api subtree with a single shared key. This is a
  single-user system; the key fences off the engine from other
  processes and LAN neighbors, nothing more.

DESIGN:
  - Clients send the key in the X-API-Key header.
  - Comparison is constant-time (crypto/subtle) so the key cannot be
    probed byte by byte.
  - An empty configured key disables the check entirely; the router
    logs one warning at startup so a production deploy cannot miss it.
  - /health sits outside the guarded subtree and never needs a key.

SEE ALSO:
  - server.go: Mounts this middleware on /api only
*/
package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// apiKeyAuth rejects requests whose X-API-Key header does not match key.
// Hashing both sides first keeps the comparison constant-time even when
// the presented key has a different length.
func apiKeyAuth(key string, log *zap.Logger) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := sha256.Sum256([]byte(r.Header.Get("X-API-Key")))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				log.Warn("rejected request with bad api key",
					zap.String("remote", r.RemoteAddr),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "invalid or missing API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
