package httpapi

import (
	"net/http"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type verifyEmailRequest struct {
	UserID string `json:"userId" validate:"required"`
	Token  string `json:"token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	UserID      string `json:"userId" validate:"required"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type sessionResponse struct {
	User   *auth.User     `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.bind(w, r, &req) {
		return
	}
	pair, user, err := a.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": user.ID, "email": user.Email})
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.bind(w, r, &req) {
		return
	}
	pair, user, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.bind(w, r, &req) {
		return
	}
	pair, user, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authorized")
		return
	}
	if err := a.svc.LogoutAll(r.Context(), user.ID); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout_all", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out from all devices"})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.VerifyEmail(r.Context(), req.UserID, req.Token); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email_verified", map[string]any{"user_id": req.UserID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "email verified successfully"})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authorized")
		return
	}
	if err := a.svc.ResendVerification(r.Context(), user.ID); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "verification email sent"})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset email sent"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.UserID, req.Token, req.NewPassword); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", map[string]any{"user_id": req.UserID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset successfully"})
}
