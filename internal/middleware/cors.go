package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"imguard/internal/origin"
)

// CORS answers preflight requests and sets CORS headers for allowed origins.
// Requests from other origins pass through untouched so the route can refuse
// them with a JSON error; only their preflights are refused here.
func CORS(allowed *origin.AllowList) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !allowed.AllowsAny(),
		MaxAge:           24 * time.Hour,
	}
	if allowed.AllowsAny() {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOriginFunc = allowed.Allowed
	}
	handler := cors.New(cfg)

	return func(c *gin.Context) {
		o := c.GetHeader("Origin")
		if o != "" && !allowed.Allowed(o) {
			if c.Request.Method == http.MethodOptions {
				abortForbiddenOrigin(c)
			}
			return
		}
		handler(c)
	}
}

// OriginGuard refuses requests whose Origin header is present and not allowed.
func OriginGuard(allowed *origin.AllowList) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowed.Allowed(c.GetHeader("Origin")) {
			abortForbiddenOrigin(c)
			return
		}
		c.Next()
	}
}

func abortForbiddenOrigin(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":   "ORIGIN_FORBIDDEN",
		"message": "origin not allowed",
	})
}
