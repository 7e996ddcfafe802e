package api

import (
	"net/http"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
)

// --- User management ---

// handleListUsers returns all users.
func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// handleCreateUser creates a new admin-sourced user.
func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	errs := fieldErrors{}
	errs.required("username", req.Username != "")
	errs.required("password", req.Password != "")

	if !config.IsValidRole(req.Role) {
		errs["role"] = "must be one of admin, runner, readonly"
	}

	if err := errs.err(); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	user := &store.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Source:       store.SourceAdmin,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

type updateUserRequest struct {
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// handleUpdateUser updates a user's password and/or role.
func (s *server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var req updateUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	user, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if req.Role != nil && userFromContext(r.Context()).ID == user.ID {
		writeError(w, http.StatusBadRequest, "cannot change your own role")

		return
	}

	if req.Password != nil && *req.Password != "" {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			s.writeStoreError(w, r, err)

			return
		}

		user.PasswordHash = hash
	}

	if req.Role != nil {
		if !config.IsValidRole(*req.Role) {
			writeError(w, http.StatusBadRequest, "role must be one of admin, runner, readonly")

			return
		}

		user.Role = *req.Role
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleDeleteUser removes a user by ID.
func (s *server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if userFromContext(r.Context()).ID == id {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")

		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Session management ---

type sessionResponse struct {
	ID           uint       `json:"id"`
	UserID       uint       `json:"user_id"`
	Username     string     `json:"username"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// handleListSessions returns all sessions with resolved usernames.
func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	usernames := make(map[uint]string, len(users))
	for i := range users {
		usernames[users[i].ID] = users[i].Username
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionResponse{
			ID:           sessions[i].ID,
			UserID:       sessions[i].UserID,
			Username:     usernames[sessions[i].UserID],
			ExpiresAt:    sessions[i].ExpiresAt,
			LastActiveAt: sessions[i].LastActiveAt,
			CreatedAt:    sessions[i].CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteSessionByID revokes a session by ID.
func (s *server) handleDeleteSessionByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteSessionByID(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- API key management ---

// handleListAllAPIKeys returns every API key of every user.
func (s *server) handleListAllAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListAllAPIKeys(r.Context())
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

// handleDeleteAPIKey revokes any API key.
func (s *server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteAPIKey(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Append-only tables ---

// adminTestResultResponse adds the owning run to a result, which the
// nested run representation leaves implicit.
type adminTestResultResponse struct {
	store.TestResult
	TestRun uint `json:"test_run"`
}

func toAdminTestResultResponse(r *store.TestResult) adminTestResultResponse {
	return adminTestResultResponse{TestResult: *r, TestRun: r.TestRunID}
}

// handleAdminTestResults searches and filters all test results.
func (s *server) handleAdminTestResults(w http.ResponseWriter, r *http.Request) {
	var f store.TestResultFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListTestResults(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toAdminTestResultResponse)
}

// handleAdminBoardLogs searches and filters all board logs.
func (s *server) handleAdminBoardLogs(w http.ResponseWriter, r *http.Request) {
	var f store.BoardLogFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	if err := requireUUIDs(map[string]*string{"board_id": f.BoardID}); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	page, err := s.store.ListBoardLogs(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.BoardLog])
}
