package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/logger"
)

// RequestLog пишет метод, шаблон маршрута, код ответа и длительность.
// Шаблон (/api/matches/{id}) вместо пути, чтобы id не попадали в лог построчно.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		if sw.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s status=%d duration_ms=%d", r.Method, route, sw.status, elapsed.Milliseconds())
			return
		}
		logger.LogDuration("http "+r.Method+" "+route, start)
	})
}
