package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/generation"
	"gemdesign-backend/internal/handler"
	"gemdesign-backend/internal/middleware"
	"gemdesign-backend/internal/service"
	"gemdesign-backend/internal/storage"
	"gemdesign-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, logger.Rotation{
		Filename:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 缺少凭证时拒绝启动
	generator, err := generation.NewGenerator(context.Background(), cfg)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			logger.Fatalf("模型凭证缺失: %v", err)
		}
		logger.Fatalf("Failed to init generator: %v", err)
	}
	if closer, ok := generator.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Infof("使用模型提供方 %s", cfg.Model.Provider)

	// 初始化服务
	store := storage.NewMemoryStorage(cfg.Conversation.TTL, cfg.Conversation.CleanupInterval)
	chatService := service.NewChatService(cfg, generator, store)
	defer chatService.Close()

	// 初始化处理器
	chatHandler := handler.NewChatHandler(chatService, cfg.Server)

	// 创建路由
	router := setupRouter(cfg, chatHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"provider":  cfg.Model.Provider,
			"timestamp": time.Now().Unix(),
		})
	})

	// API路由
	api := router.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimit))
	handler.RegisterRoutes(api, chatHandler)

	return router
}
