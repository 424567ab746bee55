// Package auth exposes the session reconciliation flows over HTTP and guards
// the dashboard API with the resulting admin identity.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/session"
)

// CookieOptions configures the browser context cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Handler handles authentication requests
type Handler struct {
	log      logrus.FieldLogger
	registry *session.Registry
	cookie   CookieOptions
}

// NewHandler creates a new auth handler
func NewHandler(log logrus.FieldLogger, registry *session.Registry, cookie CookieOptions) *Handler {
	if cookie.Name == "" {
		cookie.Name = "careadmin_ctx"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = 30 * 24 * time.Hour
	}
	return &Handler{
		log:      log.WithField("component", "auth"),
		registry: registry,
		cookie:   cookie,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminResponse represents the signed-in admin in responses
type AdminResponse struct {
	ID          uint             `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Role        models.AdminRole `json:"role"`
	Permissions []string         `json:"permissions"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
}

// SessionResponse describes the identity of the browser context
type SessionResponse struct {
	Admin   AdminResponse   `json:"admin"`
	Outcome session.Outcome `json:"outcome"`
	Source  session.Source  `json:"source"`
	// ReadOnly is set for identities restored without a provider session.
	ReadOnly bool `json:"read_only"`
}

func newSessionResponse(snap session.Snapshot) SessionResponse {
	a := snap.Principal
	perms := a.Permissions
	if perms == nil {
		perms = []string{}
	}
	return SessionResponse{
		Admin: AdminResponse{
			ID:          a.ID,
			Email:       a.Email,
			Name:        a.Name,
			Role:        a.Role,
			Permissions: perms,
			LastLoginAt: a.LastLoginAt,
		},
		Outcome:  snap.Outcome,
		Source:   snap.Source,
		ReadOnly: !snap.Writable(),
	}
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc, ok := GetSessionContext(c)
	if !ok {
		sc = h.attachContext(c)
	}

	if _, err := sc.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		h.writeLoginError(c, err)
		return
	}

	snap := sc.Snapshot()
	if !snap.Authenticated() {
		// Superseded by a concurrent logout in the same browser.
		c.JSON(http.StatusConflict, gin.H{"error": "Login was interrupted, please try again"})
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(snap))
}

func (h *Handler) writeLoginError(c *gin.Context, err error) {
	var ext *session.ExternalAuthError

	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, session.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "This account has been deactivated"})
	case errors.As(err, &ext):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Authentication service unavailable, please try again later"})
	case errors.Is(err, session.ErrContextClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session expired, please try again"})
	default:
		h.log.WithError(err).Error("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
	}
}

// Session resolves and returns the current admin
func (h *Handler) Session(c *gin.Context) {
	sc, ok := GetSessionContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	snap := sc.Resolve(c.Request.Context())
	if !snap.Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(snap))
}

// Logout ends the admin session. Local state is cleared even when the
// identity provider cannot be reached.
func (h *Handler) Logout(c *gin.Context) {
	sc, ok := GetSessionContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
		return
	}

	err := sc.Logout(c.Request.Context())
	var ext *session.ExternalAuthError
	switch {
	case err == nil, errors.Is(err, session.ErrContextClosed):
		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	case errors.As(err, &ext):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Signed out locally, but the authentication service could not be reached",
			"logged_out": true,
		})
	default:
		h.log.WithError(err).Error("Logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed", "logged_out": true})
	}
}

// RegisterRoutes registers auth routes on the given router group. loginLimit,
// if set, runs before the login handler.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, loginLimit ...gin.HandlerFunc) {
	rg.Use(h.ContextMiddleware())
	rg.POST("/login", append(loginLimit, h.Login)...)
	rg.GET("/session", h.Session)
	rg.POST("/logout", h.Logout)
}
