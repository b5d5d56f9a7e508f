package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/session"
	"github.com/BruksfildServices01/clinic-sync/internal/validators"
)

type Sessions interface {
	Login(ctx context.Context, email, password string) (session.Identity, error)
	Logout() error
	Identity() (session.Identity, bool)
}

// FreshnessMarks forgets when an owner was last reconciled.
type FreshnessMarks interface {
	Invalidate(ctx context.Context, owner models.Owner) error
}

type AuthHandler struct {
	sessions Sessions
	fresh    FreshnessMarks
	// onLogin runs after a successful login, typically to start a pass.
	onLogin func()
}

func NewAuthHandler(sessions Sessions, fresh FreshnessMarks, onLogin func()) *AuthHandler {
	return &AuthHandler{sessions: sessions, fresh: fresh, onLogin: onLogin}
}

// forget drops the owner's freshness mark so the next read reconciles.
func (h *AuthHandler) forget(ctx context.Context, id session.Identity) {
	owner := models.Owner{Role: id.Role, ID: id.UserID}
	if err := h.fresh.Invalidate(ctx, owner); err != nil {
		log.Printf("freshness invalidate owner=%s: %v", owner, err)
	}
}

// --------- Requests ---------

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// --------- Handlers ---------

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Email and password are required.")
		return
	}

	email, ok := validators.NormalizeEmail(req.Email)
	if !ok {
		httperr.BadRequest(c, "invalid_email", "Email address is not valid.")
		return
	}

	id, err := h.sessions.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	h.forget(c.Request.Context(), id)
	if !id.Offline && h.onLogin != nil {
		h.onLogin()
	}
	log.Printf("signed in %s:%d offline=%v", id.Role, id.UserID, id.Offline)

	c.JSON(http.StatusOK, gin.H{"user": id})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	id, signedIn := h.sessions.Identity()
	if err := h.sessions.Logout(); err != nil {
		httperr.Internal(c, "logout_failed", "Could not clear the session.")
		return
	}
	if signedIn {
		h.forget(c.Request.Context(), id)
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := h.sessions.Identity()
	if !ok {
		httperr.Unauthorized(c, httperr.CodeNotLoggedIn, "Sign in first.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": id})
}
