// Package httpapi is the HTTP boundary: routing, authentication and
// authorization gates, request validation and error-to-status mapping.
package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

// ReadyProbe checks dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options collects the dependencies of the HTTP layer.
type Options struct {
	Service *auth.Service
	RBAC    *auth.RBACService
	Ready   ReadyProbe
	Logger  *slog.Logger
	Limiter Limiter
	Version string
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	svc      *auth.Service
	rbac     *auth.RBACService
	validate *validator.Validate
	logger   *slog.Logger
	limiter  Limiter
	ready    ReadyProbe
	version  string
}

// New wires the router.
func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		svc:      opts.Service,
		rbac:     opts.RBAC,
		validate: validator.New(),
		logger:   logger,
		limiter:  opts.Limiter,
		ready:    opts.Ready,
		version:  opts.Version,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(SecurityHeaders)
	r.Use(MaxBodyBytes(1 << 20))
	r.Use(obs.Instrument)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.rateLimit)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/forgot-password", a.handleForgotPassword)
			r.Post("/reset-password", a.handleResetPassword)
			r.Post("/verify-email", a.handleVerifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Post("/refresh-token", a.handleRefresh)
				r.Post("/logout", a.handleLogout)
				r.Post("/logout-all", a.handleLogoutAll)
				r.Post("/resend-verification", a.handleResendVerification)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Route("/users", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermViewProfile)).Get("/profile", a.handleGetProfile)
				r.With(a.requirePermission(auth.PermEditProfile)).Put("/profile", a.handleUpdateProfile)

				r.Group(func(r chi.Router) {
					r.Use(a.requireVerified, a.requirePermission(auth.PermManageUsers))
					r.Get("/", a.handleListUsers)
					r.Get("/{id}", a.handleGetUser)
					r.Put("/{id}", a.handleUpdateUser)
					r.Delete("/{id}", a.handleDeleteUser)
				})
			})

			r.Route("/roles", func(r chi.Router) {
				r.Get("/", a.handleListRoles)
				r.Group(func(r chi.Router) {
					r.Use(a.requireVerified, a.requirePermission(auth.PermManageRoles))
					r.Post("/", a.handleCreateRole)
					r.Put("/{id}", a.handleUpdateRole)
					r.Delete("/{id}", a.handleDeleteRole)
				})
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Get("/", a.handleListPermissions)
				r.Group(func(r chi.Router) {
					r.Use(a.requireVerified, a.requirePermission(auth.PermManagePermissions))
					r.Post("/", a.handleCreatePermission)
					r.Put("/{id}", a.handleUpdatePermission)
					r.Delete("/{id}", a.handleDeletePermission)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(a.requireVerified, a.requirePermission(auth.PermManageUsers))
				r.Patch("/users/{userID}/role", a.handleAssignRole)
				r.Post("/roles/{roleID}/permissions", a.handleAssignPermission)
				r.Delete("/roles/{roleID}/permissions/{permissionID}", a.handleRemovePermission)
			})
		})
	})

	a.router = r
	return a
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keygate-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
