package gateapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kubegate/kubegate/logger"
)

// loggerMiddleware logs requests to the debug log. Only mounted when the
// gate runs with --debug.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.WithFields(
			logger.IntField("status", ww.Status()),
			logger.IntField("bytes", ww.BytesWritten()),
			logger.DurationField("Δ", time.Since(start)),
		).Debug("Diagnostics %s %s", r.Method, r.URL.Path)
	})
}
