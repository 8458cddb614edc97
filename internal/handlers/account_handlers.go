package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/h1bconnect/account-service/internal/domain"
)

// Routes wires the auth endpoints the way the public API exposes them.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(h.RateLimit(10, time.Minute))
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Get("/verify-email/{token}", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/logout", h.Logout)
		r.Post("/change-password", h.ChangePassword)
		r.Get("/profile", h.GetProfile)
	})

	return r
}

// Register handles account creation
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", domain.CodeInvalidInput)
		return
	}

	meta := domain.ClientMeta{
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
	}

	response, err := h.accountService.Register(r.Context(), &req, meta)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

// Login handles credential verification and session-token issuance
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", domain.CodeInvalidInput)
		return
	}

	response, err := h.accountService.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// VerifyEmail handles email verification via the mailed token
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing verification token", domain.CodeInvalidInput)
		return
	}

	if err := h.accountService.VerifyEmail(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully! You can now log in.",
		"code":    domain.CodeEmailVerified,
	})
}

// ResendVerification mints a fresh verification token and resends it
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", domain.CodeInvalidInput)
		return
	}

	if err := h.accountService.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Verification email sent successfully. Please check your inbox.",
		"code":    domain.CodeVerificationSent,
	})
}

// ForgotPassword acknowledges identically whether or not the email exists
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", domain.CodeInvalidInput)
		return
	}

	if err := h.accountService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account with this email exists, you will receive a password reset link.",
		"code":    domain.CodeResetEmailSent,
	})
}

// ResetPassword consumes a reset token and stores the new credential
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", domain.CodeInvalidInput)
		return
	}

	if err := h.accountService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully. You can now log in with your new password.",
		"code":    domain.CodePasswordReset,
	})
}

// ChangePassword rotates the credential for an authenticated caller
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", domain.CodeUnauthorized)
		return
	}

	var req domain.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", domain.CodeInvalidInput)
		return
	}

	if err := h.accountService.ChangePassword(r.Context(), claims.Sub, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password changed successfully",
		"code":    domain.CodePasswordChanged,
	})
}

// RefreshToken reissues a session token for an authenticated caller
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", domain.CodeUnauthorized)
		return
	}

	token, err := h.accountService.RefreshToken(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Token refreshed successfully",
		"token":   token,
	})
}

// GetProfile returns the caller's sanitized account snapshot
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", domain.CodeUnauthorized)
		return
	}

	snapshot, err := h.accountService.GetProfile(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": snapshot,
	})
}

// Logout is a stateless acknowledgment; issued tokens remain valid until
// their natural expiry.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
		"code":    domain.CodeLogoutSuccess,
	})
}
