package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/h1bconnect/account-service/internal/domain"
	"github.com/h1bconnect/account-service/internal/repository"
	"github.com/h1bconnect/account-service/internal/service"
	"github.com/h1bconnect/account-service/pkg/auth"
	"github.com/h1bconnect/account-service/pkg/config"
	"github.com/h1bconnect/account-service/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "claims"

type Handlers struct {
	accountService service.AccountService
	rateLimitRepo  repository.RateLimitRepository
	config         *config.Config
}

func New(
	accountService service.AccountService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		accountService: accountService,
		rateLimitRepo:  rateLimitRepo,
		config:         config,
	}
}

// RequireAuth verifies the Bearer session token and injects the caller's
// claims into the request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", domain.CodeUnauthorized)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", domain.CodeInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), logger.AccountIDKey, claims.Sub)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit limits requests per client IP on the public auth endpoints.
// A limiter failure never blocks the request (fail open).
func (h *Handlers) RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.rateLimitRepo == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := "auth:" + getClientIP(r)
			allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, requests, window)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.", domain.CodeRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Helper functions

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

// writeServiceError maps a service failure onto the wire contract. Typed
// auth errors keep their code and detail fields; anything else is an
// internal error whose detail stays server-side.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		logger.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error. Please try again later.", domain.CodeInternalError)
		return
	}

	body := map[string]interface{}{
		"error": authErr.Message,
		"code":  authErr.Code,
	}
	if authErr.Field != "" {
		body["field"] = authErr.Field
	}
	if authErr.AttemptsRemaining != nil {
		body["attempts_remaining"] = *authErr.AttemptsRemaining
	}
	if authErr.LockUntil != nil {
		body["lock_until"] = authErr.LockUntil
	}
	if authErr.Email != "" {
		body["email"] = authErr.Email
	}

	writeJSON(w, authErr.Status, body)
}
