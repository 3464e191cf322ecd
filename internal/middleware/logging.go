package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HTTPObserver records finished requests.
type HTTPObserver interface {
	ObserveHTTP(method string, status int, d time.Duration)
}

// WithRequestLogging logs method, path, status, size, duration and request
// id of every request. When obs is non-nil each request is also recorded there.
func WithRequestLogging(logger *zap.Logger, obs ...HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			for _, o := range obs {
				if o != nil {
					o.ObserveHTTP(r.Method, status, elapsed)
				}
			}

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
			)
		})
	}
}
