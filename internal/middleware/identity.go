package middleware

import "github.com/gin-gonic/gin"

// ClientIdentity records the caller identity used for rate limiting. It is
// the client IP as resolved by the engine's trusted proxy settings, so a
// client that reaches the server directly can spoof forwarded headers only if
// the engine is told to trust them.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, c.ClientIP())
		c.Next()
	}
}

// GetIdentity returns the caller identity set by ClientIdentity.
func GetIdentity(c *gin.Context) string {
	if id := c.GetString(identityKey); id != "" {
		return id
	}
	return c.ClientIP()
}
