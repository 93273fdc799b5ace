// middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"medilink/utils"

	"github.com/gin-gonic/gin"
)

// ContextActorID and ContextActorRole are the gin context keys the auth
// middleware populates for downstream handlers.
const (
	ContextActorID   = "actorID"
	ContextActorRole = "actorRole"
)

// JWTAuthMiddleware validates the bearer token and, when roles are given,
// requires the token's role claim to be one of them.
func JWTAuthMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		id, role, err := utils.ExtractIdentityFromToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if len(roles) > 0 {
			allowed := false
			for _, r := range roles {
				if role == r {
					allowed = true
					break
				}
			}
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
				return
			}
		}

		c.Set(ContextActorID, id)
		c.Set(ContextActorRole, role)
		c.Next()
	}
}

// ActorID returns the authenticated caller's id from the gin context.
func ActorID(c *gin.Context) string {
	return c.GetString(ContextActorID)
}
