package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"colorcraft/internal/agent"
	"colorcraft/internal/config"
	"colorcraft/internal/handler"
	"colorcraft/internal/service"
	"colorcraft/internal/storage"
	"colorcraft/internal/tools"
	"colorcraft/internal/volc"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	// 初始化日志
	config.InitLogger(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化ArkClient，凭证在第一次调用时才检查
	arkClient := volc.NewArkClient(cfg.Ark)
	if arkClient.Mock {
		logrus.Warn("ARK_MOCK 已开启，使用本地模拟数据")
	}

	// 初始化服务
	planner := service.NewPlanner(arkClient, cfg.Ark.ChatModel, service.PlanOptions{
		PageCount:           cfg.Book.PageCount,
		MaxDescriptionWords: cfg.Book.MaxDescriptionWords,
	})
	illustrator := service.NewIllustrator(arkClient, cfg.Ark.ImageModel, cfg.Ark.ImageSize)
	chatter := service.NewChatter(arkClient, cfg.Ark.ChatModel)

	// 初始化工具
	planTool := tools.NewPlanTool(planner)
	imageTool := tools.NewImageTool(illustrator)

	// 初始化ColoringBookAgent
	bookAgent := agent.NewColoringBookAgent(planner, illustrator, chatter, cfg.Session.TTL, cfg.Session.CleanupInterval)

	deps := handler.Deps{
		Agent:          bookAgent,
		PlanTool:       planTool,
		ImageTool:      imageTool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	store, err := storage.NewMinioStore(cfg.Storage.Minio)
	if err != nil {
		logrus.WithError(err).Fatal("初始化对象存储失败")
	}
	if store != nil {
		deps.Uploader = store
		logrus.WithField("bucket", cfg.Storage.Minio.Bucket).Info("导出文档将上传到 MinIO")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 在goroutine中启动服务器
	go func() {
		logrus.Infof("服务器启动在 %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("启动服务器失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("服务器关闭失败")
	}
	logrus.Info("服务器已关闭")
}
