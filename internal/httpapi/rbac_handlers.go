package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required"`
	Action      string `json:"action" validate:"required,oneof=create read update delete manage"`
	Resource    string `json:"resource" validate:"required"`
	Description string `json:"description" validate:"required"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name"`
	Action      *string `json:"action" validate:"omitempty,oneof=create read update delete manage"`
	Resource    *string `json:"resource"`
	Description *string `json:"description"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
}

type assignPermissionRequest struct {
	PermissionID string `json:"permission_id" validate:"required"`
}

// --- roles ---

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !a.bind(w, r, &req) {
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{"role_id": role.ID, "name": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !a.bind(w, r, &req) {
		return
	}
	role, err := a.rbac.UpdateRole(r.Context(), chi.URLParam(r, "id"), auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{"role_id": role.ID})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{"role_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "role deleted"})
}

// --- permissions ---

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !a.bind(w, r, &req) {
		return
	}
	perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Action, req.Resource, req.Description)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{"permission_id": perm.ID, "name": perm.Name})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if !a.bind(w, r, &req) {
		return
	}
	perm, err := a.rbac.UpdatePermission(r.Context(), chi.URLParam(r, "id"), auth.PermissionUpdate{
		Name:        req.Name,
		Action:      req.Action,
		Resource:    req.Resource,
		Description: req.Description,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.update", map[string]any{"permission_id": perm.ID})
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.delete", map[string]any{"permission_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "permission deleted"})
}

// --- admin ---

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !a.bind(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")
	user, err := a.rbac.AssignRoleToUser(r.Context(), userID, req.RoleID)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.assign_role", map[string]any{"user_id": userID, "role_id": req.RoleID})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAssignPermission(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionRequest
	if !a.bind(w, r, &req) {
		return
	}
	roleID := chi.URLParam(r, "roleID")
	link, err := a.rbac.AssignPermission(r.Context(), roleID, req.PermissionID)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.assign_permission", map[string]any{
		"role_id":       roleID,
		"permission_id": req.PermissionID,
	})
	writeJSON(w, http.StatusCreated, link)
}

func (a *API) handleRemovePermission(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	permissionID := chi.URLParam(r, "permissionID")
	if err := a.rbac.RemovePermission(r.Context(), roleID, permissionID); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.remove_permission", map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "permission removed from role"})
}
