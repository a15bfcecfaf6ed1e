package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Logger attaches log to every request context and writes one access line
// per request. Run it after chi's RequestID middleware so lines carry the id.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		evt := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			evt = hlog.FromRequest(r).Error()
		}
		evt.
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("latency", d).
			Str("remote_ip", r.RemoteAddr).
			Msg("request")
	})
	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(log)(access(next))
	}
}
