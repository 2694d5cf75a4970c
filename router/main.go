// Package router assembles the gin engine: middleware chain, the OpenAI-style
// relay surface and the operational endpoints.
package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/middleware"
	"github.com/llmgateway/llmgateway/monitor"
	"github.com/llmgateway/llmgateway/relay/controller"
)

// SetRouter registers all routes on the engine.
func SetRouter(engine *gin.Engine) {
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(cors.Default())
	if config.OpenTelemetryEnabled {
		engine.Use(otelgin.Middleware(config.OpenTelemetryServiceName))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(monitor.Handler()))

	v1 := engine.Group("/v1")
	// Model listings compress well; relay responses stream and stay uncompressed.
	v1.GET("/models", gzip.Gzip(gzip.DefaultCompression), controller.ListModels)

	authed := v1.Group("", middleware.TokenAuth())
	authed.POST("/chat/completions", controller.RelayChatCompletions)
}
