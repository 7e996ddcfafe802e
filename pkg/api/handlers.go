package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// listResponse is one page of a list endpoint.
type listResponse[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps a store error onto an HTTP status. Unexpected
// errors are logged and reported without detail.
func (s *server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *store.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: vErr.Fields,
		})
	case errors.Is(err, store.ErrInvalidPage):
		writeError(w, http.StatusNotFound, "invalid page")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writePage converts and writes one page of list results.
func writePage[T, R any](w http.ResponseWriter, page *store.Page[T], convert func(*T) R) {
	results := make([]R, 0, len(page.Items))
	for i := range page.Items {
		results = append(results, convert(&page.Items[i]))
	}

	writeJSON(w, http.StatusOK, listResponse[R]{
		Count:   page.Count,
		Results: results,
	})
}

func identity[T any](v *T) T { return *v }

// --- Public handlers ---

// handleHealth reports server and database health.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"status": "unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth handlers ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User userResponse `json:"user"`
}

type userResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Source:    u.Source,
		CreatedAt: u.CreatedAt,
	}
}

// handleLogin authenticates a user with username/password and creates a
// session.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")

		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !checkPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	ttl, _ := time.ParseDuration(s.cfg.Auth.SessionTTL)

	session := &store.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(ttl.Seconds()),
	})

	writeJSON(w, http.StatusOK, loginResponse{User: toUserResponse(user)})
}

// handleLogout destroys the current session.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := s.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			s.log.WithError(err).Warn("Failed to delete session on logout")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the currently authenticated user.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFromContext(r.Context())))
}

// --- API key handlers ---

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createAPIKeyResponse struct {
	Key    string         `json:"key"`
	APIKey apiKeyResponse `json:"api_key"`
}

type apiKeyResponse struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	UserID     uint       `json:"user_id"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toAPIKeyResponse(k *store.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		UserID:     k.UserID,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// handleCreateAPIKey creates a new API key for the authenticated user.
// The plaintext key is only returned by this call.
func (s *server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req createAPIKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")

		return
	}

	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "expires_at must be in the future")

		return
	}

	plaintext, hash, prefix, err := generateAPIKey()
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	apiKey := &store.APIKey{
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		UserID:    user.ID,
	}

	if req.ExpiresAt != nil {
		utc := req.ExpiresAt.UTC()
		apiKey.ExpiresAt = &utc
	}

	if err := s.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		Key:    plaintext,
		APIKey: toAPIKeyResponse(apiKey),
	})
}

// handleListMyAPIKeys lists API keys for the authenticated user.
func (s *server) handleListMyAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListAPIKeysByUser(r.Context(), userFromContext(r.Context()).ID)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	resp := make([]apiKeyResponse, 0, len(keys))
	for i := range keys {
		resp = append(resp, toAPIKeyResponse(&keys[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteMyAPIKey deletes an API key owned by the authenticated user.
func (s *server) handleDeleteMyAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	keys, err := s.store.ListAPIKeysByUser(r.Context(), userFromContext(r.Context()).ID)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	owned := false

	for i := range keys {
		if keys[i].ID == id {
			owned = true

			break
		}
	}

	if !owned {
		writeError(w, http.StatusNotFound, "api key not found")

		return
	}

	if err := s.store.DeleteAPIKey(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
