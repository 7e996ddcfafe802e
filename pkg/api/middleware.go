package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

// activityThrottle bounds how often last-used timestamps are written.
const activityThrottle = 5 * time.Minute

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", ww.Status()).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth checks for a Bearer API key or session cookie and injects
// the user into the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			s.authenticateAPIKey(w, r, next, strings.TrimSpace(token))

			return
		}

		s.authenticateSession(w, r, next)
	})
}

// authenticateAPIKey validates a Bearer API key and serves the request
// with the permissions of the key's owner.
func (s *server) authenticateAPIKey(
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
	token string,
) {
	apiKey, err := s.store.GetAPIKeyByHash(r.Context(), hashAPIKey(token))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid api key")

		return
	}

	if apiKey.ExpiresAt != nil && time.Now().UTC().After(*apiKey.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "api key expired")

		return
	}

	user, err := s.store.GetUserByID(r.Context(), apiKey.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user not found")

		return
	}

	if apiKey.LastUsedAt == nil || time.Since(*apiKey.LastUsedAt) > activityThrottle {
		go func() {
			if err := s.store.UpdateAPIKeyLastUsed(
				context.Background(), apiKey.ID, time.Now().UTC(),
			); err != nil {
				s.log.WithError(err).
					Warn("Failed to update api key last used")
			}
		}()
	}

	next.ServeHTTP(w, r.WithContext(
		context.WithValue(r.Context(), userContextKey, user),
	))
}

// authenticateSession validates a session cookie and serves the request.
func (s *server) authenticateSession(
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")

		return
	}

	session, err := s.store.GetSessionByToken(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")

		return
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		if err := s.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			s.log.WithError(err).Warn("Failed to delete expired session")
		}

		writeError(w, http.StatusUnauthorized, "session expired")

		return
	}

	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user not found")

		return
	}

	if session.LastActiveAt == nil || time.Since(*session.LastActiveAt) > activityThrottle {
		go func() {
			if err := s.store.UpdateSessionLastActive(
				context.Background(), session.ID, time.Now().UTC(),
			); err != nil {
				s.log.WithError(err).
					Warn("Failed to update session last active")
			}
		}()
	}

	next.ServeHTTP(w, r.WithContext(
		context.WithValue(r.Context(), userContextKey, user),
	))
}

// requireRole checks that the authenticated user has the specified role.
func (s *server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil || user.Role != role {
				writeError(w, http.StatusForbidden, "insufficient permissions")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireWriter rejects unsafe methods from read-only users.
func (s *server) requireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSafeMethod(r.Method) {
			user := userFromContext(r.Context())
			if user == nil || user.Role == config.RoleReadOnly {
				writeError(w, http.StatusForbidden, "read-only users cannot modify resources")

				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// requireTestRunner guards test runs and scenarios. Unless execution
// reads are opened in config, every method needs a test runner.
func (s *server) requireTestRunner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.OpenExecutionReads && isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)

			return
		}

		if !isTestRunner(userFromContext(r.Context())) {
			writeError(w, http.StatusForbidden, "test runner permission required")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func isTestRunner(u *store.User) bool {
	return u != nil && (u.Role == config.RoleRunner || u.Role == config.RoleAdmin)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	return false
}

// userFromContext extracts the authenticated user from the request context.
func userFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)

	return user
}
