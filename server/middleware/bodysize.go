package middleware

import (
	"net/http"

	"github.com/kbukum/bytepipe/util"
)

// BodySizeLimit caps request bodies at maxSize (e.g. "10MB"). A size of zero
// or an unparsable size leaves bodies unbounded, which streaming uploads need.
func BodySizeLimit(maxSize string) Middleware {
	size := util.ParseSize(maxSize, 0)
	return func(next http.Handler) http.Handler {
		if size <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, size)
			next.ServeHTTP(w, r)
		})
	}
}
