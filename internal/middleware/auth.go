package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"cipherlink-backend/pkg/jwt"
	"cipherlink-backend/pkg/response"
)

// AuthMiddleware creates a Gin middleware that validates JWT tokens.
// The token comes from the Authorization header, or from the token query
// parameter for WebSocket upgrades where browsers cannot set headers.
// On success it binds user_id and username into the Gin context.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		if !hasAudience(claims, jwt.Audience) {
			response.Unauthorized(c, "invalid token audience")
			c.Abort()
			return
		}

		if claims.UserID <= 0 {
			response.Unauthorized(c, "invalid token subject")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func hasAudience(claims *jwt.Claims, audience string) bool {
	for _, a := range claims.Audience {
		if a == audience {
			return true
		}
	}
	return false
}
