package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/auth"
	"github.com/jk-7-dev/event-manager/internal/service"
)

const (
	msgNoToken     = "Not authorized, no token"
	msgTokenFailed = "Not authorized, token failed"
	msgNotAdmin    = "Not authorized as an admin"
)

// Authenticated resolves the bearer token to an identity and stores it in
// the request context. Requests without a valid token stop here with 401.
func Authenticated(svc *service.AuthService, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, msgNoToken)
				return
			}

			ident, err := svc.Identify(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					log.Error("identify caller",
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.Error(err),
					)
				}
				writeError(w, http.StatusUnauthorized, msgTokenFailed)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), ident)))
		})
	}
}

// AdminOnly rejects callers without the admin flag. It must run after
// Authenticated.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := auth.IdentityFrom(r.Context())
		if !ok || !ident.IsAdmin {
			writeError(w, http.StatusUnauthorized, msgNotAdmin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logger writes one access log line per request.
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}
