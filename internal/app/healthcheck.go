package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/dlsgrid/internal/tracing"
)

// Handler returns the HTTP surface of the application: dispatch and plan
// routes, the health check and the metrics endpoint. Every request is
// recorded as a server span.
func (a *App) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", a.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{})))
	a.interop.Register(engine)

	return tracing.Middleware(a.tracer, engine)
}

// healthHandler answers liveness checks.
func (a *App) healthHandler(c *gin.Context) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", c.Request.RemoteAddr, "path", c.Request.URL.Path)
	c.JSON(http.StatusOK, gin.H{
		"status": "OK",
		"host":   a.config.HostName,
		"groups": a.interop.Groups(),
	})
}
