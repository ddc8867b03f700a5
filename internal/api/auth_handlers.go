package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"membership/internal/admin"
	"membership/internal/apperr"
	"membership/internal/auth"
)

// AuthHandler serves admin authentication and account management.
type AuthHandler struct {
	admins *admin.Service
	log    *zap.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(admins *admin.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{admins: admins, log: log}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	a, tokens, err := h.admins.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "logged in successfully", gin.H{"admin": a, "tokens": tokens})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /api/auth/forgot-password. The raw reset token
// is returned in the response body; delivery is the caller's problem.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	token, err := h.admins.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "reset token generated successfully", gin.H{"resetToken": token})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPassword handles POST /api/auth/reset-password/:token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	a, tokens, err := h.admins.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "password reset successfully", gin.H{"admin": a, "tokens": tokens})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := auth.FromContext(c)
	if !ok {
		respondErr(c, h.log, apperr.Validation("not authenticated", nil))
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	err := h.admins.ChangePassword(c.Request.Context(), claims.Subject,
		req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "password changed successfully", nil)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	a, err := h.admins.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", a)
}

// UpdateMe handles PUT /api/auth/me: profile-only edits, role and status are
// superadmin territory.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req admin.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	req.Role = nil
	req.Status = nil
	a, err := h.admins.Update(c.Request.Context(), claims.Subject, req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "profile updated successfully", a)
}

// RegisterAdmin handles POST /api/auth/admins (superadmin).
func (h *AuthHandler) RegisterAdmin(c *gin.Context) {
	var req admin.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	a, err := h.admins.Register(c.Request.Context(), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondCreated(c, "admin created successfully", a)
}

// ListAdmins handles GET /api/auth/admins (superadmin).
func (h *AuthHandler) ListAdmins(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", admins)
}

// UpdateAdmin handles PUT /api/auth/admins/:id (superadmin).
func (h *AuthHandler) UpdateAdmin(c *gin.Context) {
	var req admin.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	a, err := h.admins.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "admin updated successfully", a)
}

// DeleteAdmin handles DELETE /api/auth/admins/:id (superadmin). Self-deletion
// is rejected.
func (h *AuthHandler) DeleteAdmin(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	id := c.Param("id")
	if id == claims.Subject {
		respondErr(c, h.log, apperr.Conflict("you cannot delete your own account"))
		return
	}
	if err := h.admins.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "admin deleted successfully", nil)
}
