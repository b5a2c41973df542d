package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/LexiconIndonesia/career-crawler-service/common/utils"
)

const ApiKeyHeader = "X-API-KEY"

// ApiKey rejects requests whose X-API-KEY header does not match key. An
// empty key disables the check.
func ApiKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(ApiKeyHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				utils.WriteError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
