package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
)

type updateProfileRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	RoleID   *string `json:"role_id"`
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authorized")
		return
	}
	var req updateProfileRequest
	if !a.bind(w, r, &req) {
		return
	}
	updated, err := a.svc.UpdateUser(r.Context(), user.ID, auth.ProfileUpdate{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !a.bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	updated, err := a.svc.UpdateUser(r.Context(), id, auth.ProfileUpdate{
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.update", map[string]any{"user_id": id})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteUser(r.Context(), id); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.delete", map[string]any{"user_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
