// ABOUTME: HTTP handlers for login, admin users and the audit log
// ABOUTME: Login is the only /api route that runs without a bearer token

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/store"
)

// loginRequest is the body of POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// passwordRequest is the body of password changes.
type passwordRequest struct {
	Password string `json:"password"`
}

// roleRequest is the body of PUT /api/users/{id}/role.
type roleRequest struct {
	Role store.Role `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, expires, user, err := s.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username, "remote_addr", r.RemoteAddr)
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	s.writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires, User: toUserResponse(user)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), auth.MustFromContext(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.SetPassword(r.Context(), auth.MustFromContext(r.Context()).UserID, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.UserInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.SetRole(r.Context(), r.PathValue("id"), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleSetUserPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.SetPassword(r.Context(), r.PathValue("id"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit lists audit entries newest first. Filters: actor, action,
// target_type, target_id, since and until (RFC 3339), limit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]AuditResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	var f store.AuditFilter
	q := r.URL.Query()

	f.ActorID = queryString(r, "actor")
	f.TargetType = queryString(r, "target_type")
	f.TargetID = queryString(r, "target_id")
	if q.Has("action") {
		action := store.AuditAction(q.Get("action"))
		f.Action = &action
	}

	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		if !q.Has(name) {
			continue
		}
		t, err := time.Parse(time.RFC3339, q.Get(name))
		if err != nil {
			return f, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", errBadRequest, name)
		}
		*dst = &t
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}
