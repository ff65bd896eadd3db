package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser clients; Content-Disposition is exposed for export
// downloads.
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-Id", "Last-Event-ID"}
	config.ExposeHeaders = []string{"Content-Disposition", "X-Request-Id"}

	return cors.New(config)
}
