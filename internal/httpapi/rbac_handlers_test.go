package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"keygate.io/internal/auth"
)

func TestPermissionDenied(t *testing.T) {
	c := newTestAPI(t)
	sess := c.verifiedUser("alice@example.com", "hunter2secret")

	// A regular user can read their own profile but not manage others.
	resp := c.get("/api/users/profile", sess.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/api/users/", sess.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusForbidden)
	body := decode[errorResponse](t, resp)
	if body.Error != "permission denied" {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	resp = c.post("/api/roles/", map[string]string{"name": "support"}, sess.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestRoleManagement(t *testing.T) {
	c := newTestAPI(t)
	admin := c.verifiedAdmin("root@example.com", "hunter2secret")

	resp := c.post("/api/roles/", map[string]string{"name": "Support", "description": "Support staff"}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusCreated)
	role := decode[auth.Role](t, resp)
	if role.Name != "support" {
		t.Fatalf("role name not normalized: %q", role.Name)
	}

	resp = c.post("/api/roles/", map[string]string{"name": "support"}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/roles/"+role.ID, map[string]string{"description": "First line support"}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	updated := decode[auth.Role](t, resp)
	if updated.Description != "First line support" {
		t.Fatalf("description not updated: %q", updated.Description)
	}

	resp = c.do(http.MethodDelete, "/api/roles/"+role.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/api/roles/"+role.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// A role that still has members cannot be removed.
	resp = c.do(http.MethodDelete, "/api/roles/"+c.admin.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestPermissionManagement(t *testing.T) {
	c := newTestAPI(t)
	admin := c.verifiedAdmin("root@example.com", "hunter2secret")

	resp := c.post("/api/permissions/", map[string]string{
		"name": "export_reports", "action": "read", "resource": "reports", "description": "Can export reports",
	}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusCreated)
	perm := decode[auth.Permission](t, resp)
	if perm.ID == "" {
		t.Fatalf("expected a permission id")
	}

	resp = c.post("/api/permissions/", map[string]string{
		"name": "bad_action", "action": "explode", "resource": "reports", "description": "x",
	}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusBadRequest)
	body := decode[errorResponse](t, resp)
	if body.Error != "validation failed" {
		t.Fatalf("unexpected error: %+v", body)
	}

	role, err := c.rbac.CreateRole(context.Background(), "auditor", "Read only")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	resp = c.post("/api/admin/roles/"+role.ID+"/permissions", map[string]string{"permission_id": perm.ID}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	// Assigning the same pair twice is a client error.
	resp = c.post("/api/admin/roles/"+role.ID+"/permissions", map[string]string{"permission_id": perm.ID}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.post("/api/admin/roles/missing-role/permissions", map[string]string{"permission_id": perm.ID}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// A linked permission is deletion-restricted.
	resp = c.do(http.MethodDelete, "/api/permissions/"+perm.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/api/admin/roles/"+role.ID+"/permissions/"+perm.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/api/admin/roles/"+role.ID+"/permissions/"+perm.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/api/permissions/"+perm.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestAssignRoleToUser(t *testing.T) {
	c := newTestAPI(t)
	admin := c.verifiedAdmin("root@example.com", "hunter2secret")
	member := c.verifiedUser("bob@example.com", "hunter2secret")

	resp := c.do(http.MethodPatch, "/api/admin/users/"+member.User.ID+"/role",
		map[string]string{"role_id": c.admin.ID}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// The promoted user can now reach admin surface.
	resp = c.get("/api/users/", member.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	listing := decode[struct {
		Users []*auth.User `json:"users"`
	}](t, resp)
	if len(listing.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(listing.Users))
	}

	resp = c.do(http.MethodPatch, "/api/admin/users/missing-user/role",
		map[string]string{"role_id": c.admin.ID}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)
	admin := c.verifiedAdmin("root@example.com", "hunter2secret")
	member := c.verifiedUser("bob@example.com", "hunter2secret")

	resp := c.get("/api/users/"+member.User.ID, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	got := decode[auth.User](t, resp)
	if got.Email != "bob@example.com" {
		t.Fatalf("unexpected email: %s", got.Email)
	}

	resp = c.do(http.MethodPut, "/api/users/"+member.User.ID,
		map[string]string{"email": "robert@example.com"}, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	got = decode[auth.User](t, resp)
	if got.Email != "robert@example.com" {
		t.Fatalf("email not updated: %s", got.Email)
	}

	resp = c.do(http.MethodDelete, "/api/users/"+member.User.ID, nil, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/api/users/"+member.User.ID, admin.Tokens.AccessToken)
	wantStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

// TestPermissionUndefined exercises the misconfiguration path: a gated
// route whose permission never made it into the catalog is a server
// error, not a denial.
func TestPermissionUndefined(t *testing.T) {
	ctx := context.Background()
	store := auth.NewInMemoryStore()
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	// Roles exist, the permission catalog deliberately does not.
	if _, err := rbac.CreateRole(ctx, auth.RoleUser, "Default user role"); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	codec, err := auth.NewCodec("test-access-secret", "test-refresh-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	users := store.Users(ctx)
	svc, err := auth.NewService(store, codec,
		auth.NewRefreshStore(users),
		auth.NewVerificationManager(users),
		auth.NewResetManager(users),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(Options{Service: svc, RBAC: rbac, Version: "test"})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	c := &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, store: store, rbac: rbac}
	pair, user, err := svc.Register(ctx, "alice@example.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Users(ctx).ConsumeVerification(ctx, user.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	resp := c.get("/api/users/profile", pair.AccessToken)
	wantStatus(t, resp, http.StatusInternalServerError)
	body := decode[errorResponse](t, resp)
	if body.Error != "permission misconfigured" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}
