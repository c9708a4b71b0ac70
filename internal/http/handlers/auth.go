package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/ctxutil"
)

type IdentityService interface {
	Login(ctx context.Context, name, password string) (identity.LoginResult, error)
	ResetPassword(ctx context.Context, name, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	Lookup(ctx context.Context, id string) (identity.Account, error)
}

type AuthHandler struct {
	ids IdentityService
}

func NewAuthHandler(ids IdentityService) *AuthHandler {
	return &AuthHandler{ids: ids}
}

// POST /api/login
func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := ah.ids.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/reset-password (authenticated; the caller changes their own password)
func (ah *AuthHandler) ResetPassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := ah.ids.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/admin/users/:id/password
func (ah *AuthHandler) AdminResetPassword(c *gin.Context) {
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := ah.ids.ResetPassword(c.Request.Context(), c.Param("id"), req.NewPassword); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// GET /api/me
func (ah *AuthHandler) Me(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", pkgerrors.ErrUnauthorized)
		return
	}
	if rd.Admin {
		response.RespondOK(c, gin.H{"user": gin.H{"id": rd.UserID, "name": rd.Name}, "admin": true})
		return
	}
	acct, err := ah.ids.Lookup(c.Request.Context(), rd.UserID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("account no longer exists"))
		return
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": acct.User, "lastLoginAt": acct.LastLoginAt, "admin": false})
}

// currentUserID reads the caller set by the auth middleware.
func currentUserID(c *gin.Context) (string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", pkgerrors.ErrUnauthorized)
		return "", false
	}
	return rd.UserID, true
}
