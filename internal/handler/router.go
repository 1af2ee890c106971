package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"colorcraft/internal/agent"
	"colorcraft/internal/storage"
	"colorcraft/internal/tools"
	apperrors "colorcraft/pkg/errors"
)

// Deps 路由依赖
type Deps struct {
	Agent          *agent.ColoringBookAgent
	PlanTool       *tools.PlanTool
	ImageTool      *tools.ImageTool
	Uploader       storage.Uploader
	AllowedOrigins []string
}

// NewRouter 注册全部路由
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Metrics(), CORS(d.AllowedOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/books", handleGenerate(d.Agent))
		api.GET("/books/:session_id", handleBookState(d.Agent))
		api.GET("/books/:session_id/events", handleBookEvents(d.Agent))
		api.GET("/books/:session_id/pdf", handleExportPDF(d.Agent, d.Uploader))

		api.POST("/chat", handleChat(d.Agent))
		api.GET("/chat/:session_id", handleTranscript(d.Agent))
	}

	router.GET("/agent/info", handleAgentInfo(d.Agent, d.PlanTool, d.ImageTool))
	router.POST("/tools/plan-generate", handleToolInvoke(d.PlanTool, apperrors.ErrPlanFailed))
	router.POST("/tools/image-generate", handleToolInvoke(d.ImageTool, apperrors.ErrImageFailed))

	return router
}
