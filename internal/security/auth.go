package security

import (
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the gin context key for the calling user ID.
	ContextKeyUserID = "userID"
	// ContextKeyIsAdmin is the gin context key for admin authorization.
	ContextKeyIsAdmin = "isAdmin"
)

const (
	// HeaderUserID carries the caller's user id.
	HeaderUserID = "X-User-ID"
	// legacyHeaderUserID is accepted when HeaderUserID is absent.
	legacyHeaderUserID = "user_id"
)

// AdminLookup reports whether a user holds the admin flag.
type AdminLookup func(ctx context.Context, userID string) (bool, error)

// GetUserID returns the caller's user ID from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// IsAdmin returns true if the request is from an admin.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyIsAdmin)
	b, _ := v.(bool)
	return b
}

// callerID reads the caller identity headers.
func callerID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(legacyHeaderUserID))
}

// UserIDMiddleware requires a caller identity header and stores it in the
// gin context. Authentication happens upstream; this layer only identifies.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := callerID(c)
		if userID == "" {
			log.Info("Request rejected: missing user id header", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header", "code": "unauthorized"})
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// RequireAdminRole requires the caller to be listed in adminUsers or to hold
// the admin flag in the user directory. It must run after UserIDMiddleware.
func RequireAdminRole(adminUsers string, lookup AdminLookup) gin.HandlerFunc {
	configured := splitCSV(adminUsers)
	return func(c *gin.Context) {
		userID := GetUserID(c)
		admin := configured[userID]
		if !admin && lookup != nil {
			var err error
			admin, err = lookup(c.Request.Context(), userID)
			if err != nil {
				log.Debug("Admin lookup failed", "userId", userID, "err", err)
			}
		}
		if !admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		c.Set(ContextKeyIsAdmin, true)
		c.Next()
	}
}

func splitCSV(raw string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out[v] = true
		}
	}
	return out
}
