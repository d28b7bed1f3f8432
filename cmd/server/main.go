package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-messaging/config"
	"portal-messaging/internal/handler"
	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"
	"portal-messaging/internal/service"
	"portal-messaging/pkg/db"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/logger"
	"portal-messaging/pkg/redis"
	"portal-messaging/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	logger.InitLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("服务启动中...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.Database.Host),
	)

	// 3. 初始化数据库
	gormDB, err := db.InitDB(cfg.Database)
	if err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}
	defer db.CloseDB()

	// 4. 自动迁移表结构
	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
	); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 5. 初始化Redis（未读汇总缓存）
	// Redis不可用时降级为纯数据库计算，只影响性能不影响正确性
	if err := redis.InitRedis(cfg.Redis); err != nil {
		logger.Warn("Redis初始化失败，未读缓存降级", zap.Error(err))
	} else {
		defer redis.Close()
	}

	// 6. 组装依赖
	jwtService := jwt.NewJWTService(cfg.JWT)

	userRepo := repository.NewUserRepository(gormDB)
	convRepo := repository.NewConversationRepository(gormDB)
	messageRepo := repository.NewMessageRepository(gormDB)

	userService := service.NewUserService(userRepo, jwtService)
	convService := service.NewConversationService(gormDB, convRepo, messageRepo, userRepo)
	messageService := service.NewMessageService(gormDB, convRepo, messageRepo, userRepo)
	notifService := service.NewNotificationService(gormDB, convRepo, messageRepo, userRepo, cfg.Messaging.PreviewLength)

	userHandler := handler.NewUserHandler(userService)
	convHandler := handler.NewConversationHandler(convService, notifService, cfg.Messaging)
	messageHandler := handler.NewMessageHandler(messageService, cfg.Messaging)
	notifHandler := handler.NewNotificationHandler(notifService)

	// 7. 配置路由
	router := setupRouter(cfg, jwtService, userHandler, convHandler, messageHandler, notifHandler)

	// 8. 启动HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP服务器启动", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到关闭信号，服务关闭中...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// setupRouter 配置gin路由
func setupRouter(
	cfg *config.Config,
	jwtService *jwt.JWTService,
	userHandler *handler.UserHandler,
	convHandler *handler.ConversationHandler,
	messageHandler *handler.MessageHandler,
	notifHandler *handler.NotificationHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.LoggerMiddleware())
	router.Use(logger.ErrorLoggerMiddleware())

	// 附件静态访问
	router.Static("/uploads", cfg.Messaging.UploadDir)

	// 基础路由
	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{"service": "portal-messaging"})
	})
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"database": "ok", "redis": "ok"}
		if err := db.HealthCheck(); err != nil {
			status["database"] = err.Error()
		}
		if err := redis.HealthCheck(); err != nil {
			status["redis"] = err.Error()
		}
		response.Success(c, status)
	})

	api := router.Group("/api/v1")

	// 公开路由
	users := api.Group("/users")
	{
		users.POST("/register", userHandler.Register)
		users.POST("/login", userHandler.Login)
	}

	// 认证路由
	auth := api.Group("")
	auth.Use(jwtService.AuthMiddleware())
	{
		auth.GET("/users/profile", userHandler.GetProfile)
		auth.GET("/users", userHandler.ListUsers)

		conversations := auth.Group("/conversations")
		{
			conversations.GET("", convHandler.ListConversations)
			conversations.POST("/private", convHandler.CreatePrivate)
			conversations.POST("/group", convHandler.CreateGroup)
			conversations.POST("/broadcast", convHandler.CreateBroadcast)

			conversations.GET("/:conversation_id", convHandler.GetConversation)
			conversations.PUT("/:conversation_id", convHandler.UpdateGroup)
			conversations.DELETE("/:conversation_id", convHandler.ArchiveConversation)

			conversations.GET("/:conversation_id/messages", messageHandler.ListMessages)
			conversations.POST("/:conversation_id/messages", messageHandler.SendMessage)
			conversations.PUT("/:conversation_id/messages/:message_id", messageHandler.EditMessage)
			conversations.DELETE("/:conversation_id/messages/:message_id", messageHandler.DeleteMessage)
			conversations.POST("/:conversation_id/read", messageHandler.MarkRead)

			conversations.POST("/:conversation_id/participants", convHandler.AddParticipant)
			conversations.DELETE("/:conversation_id/participants/:user_id", convHandler.RemoveParticipant)
			conversations.PUT("/:conversation_id/participants/:user_id/admin", convHandler.PromoteAdmin)
			conversations.DELETE("/:conversation_id/participants/:user_id/admin", convHandler.DemoteAdmin)
		}

		notifications := auth.Group("/notifications")
		{
			notifications.GET("", notifHandler.ListNotifications)
			notifications.GET("/unread-count", notifHandler.UnreadCount)
		}
	}

	return router
}
