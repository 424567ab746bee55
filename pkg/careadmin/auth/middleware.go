package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/session"
)

const (
	// ContextKeySession is the key for the browser's *session.Context in gin context
	ContextKeySession = "session_context"
	// ContextKeyAdmin is the key for the authenticated *models.AdminUser in gin context
	ContextKeyAdmin = "admin"
	// ContextKeySnapshot is the key for the session.Snapshot the request was authorized with
	ContextKeySnapshot = "session_snapshot"
)

// RevalidateAfter is how long the provider session behind an identity is
// trusted before RequireSession resolves it again.
const RevalidateAfter = time.Minute

// ContextMiddleware attaches the browser context named by the cookie. A
// well-formed id the registry no longer holds is recovered; requests without
// one get no context until they log in. Afterwards the context is filed by
// whether it is signed in.
func (h *Handler) ContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(h.cookie.Name)

		sc, ok := h.registry.Get(id)
		if !ok && session.ValidID(id) {
			// A context we forgot about; recover what it had.
			sc, _ = h.registry.Acquire(id)
			sc.Resolve(c.Request.Context())
			ok = true
		}
		if ok {
			c.Set(ContextKeySession, sc)
		}

		c.Next()

		if sc, ok := GetSessionContext(c); ok {
			h.registry.Settle(sc)
		}
	}
}

// attachContext creates a context for the request and issues its cookie.
func (h *Handler) attachContext(c *gin.Context) *session.Context {
	sc, _ := h.registry.Acquire("")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, sc.ID(), int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
	c.Set(ContextKeySession, sc)
	return sc
}

// RequireSession rejects requests without an authenticated admin and sets
// the admin in context. The admin is re-read on every request; deactivated
// admins are signed out before the request is rejected.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := GetSessionContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if snap := sc.Snapshot(); snap.Authenticated() && time.Since(snap.UpdatedAt) > RevalidateAfter {
			sc.Resolve(c.Request.Context())
		}

		snap, err := sc.Revalidate(c.Request.Context())
		if err != nil {
			h.log.WithError(err).Error("Failed to revalidate session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify session"})
			c.Abort()
			return
		}
		if !snap.Authenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Set(ContextKeySnapshot, snap)
		c.Set(ContextKeyAdmin, snap.Principal)
		c.Next()
	}
}

// RequireWritable rejects mutations from identities restored without a
// provider session. Safe methods pass through.
func RequireWritable() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		v, exists := c.Get(ContextKeySnapshot)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		if !v.(session.Snapshot).Writable() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Read-only session, please log in again to make changes"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireSuperAdmin middleware checks if the admin has the super_admin role
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, exists := GetAdmin(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if admin.Role != models.AdminRoleSuperAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Super admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission middleware checks if the admin holds perm
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, exists := GetAdmin(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !admin.HasPermission(perm) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission required: " + perm})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetSessionContext returns the browser context from the gin context
func GetSessionContext(c *gin.Context) (*session.Context, bool) {
	v, exists := c.Get(ContextKeySession)
	if !exists {
		return nil, false
	}
	return v.(*session.Context), true
}

// GetAdmin returns the authenticated admin from the gin context
func GetAdmin(c *gin.Context) (*models.AdminUser, bool) {
	v, exists := c.Get(ContextKeyAdmin)
	if !exists {
		return nil, false
	}
	return v.(*models.AdminUser), true
}

// GetAdminID returns the authenticated admin's ID from the gin context
func GetAdminID(c *gin.Context) (uint, bool) {
	admin, ok := GetAdmin(c)
	if !ok {
		return 0, false
	}
	return admin.ID, true
}
