package paywall

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter serves a demo resource at every path, behind the paywall. The
// health check at /healthz stays free.
func NewRouter(opts ...Option) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	paid := router.Group("/", Middleware(opts...))
	paid.Any("/paid/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"path":    c.Param("path"),
			"method":  c.Request.Method,
			"message": "payment accepted",
		})
	})

	return router
}
