package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"board-go-server/api/controller"
	"board-go-server/api/route"
	"board-go-server/bootstrap"
	domainRepo "board-go-server/domain/repository"
	"board-go-server/internal/ws"
	"board-go-server/repository"
	"board-go-server/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.Println("[Server] Board Go Server 启动中...")

	// 加载环境变量
	env := bootstrap.LoadEnv()
	domainRepo.DefaultPageSize = env.PageSize

	// 初始化 Clerk
	if err := bootstrap.InitClerk(env.ClerkSecretKey); err != nil {
		log.Fatalf("[Server] ❌ %v", err)
	}

	// 连接数据库
	db := bootstrap.NewDatabase(env.DatabaseURL)

	// 依赖注入 - Repository 层
	boardRepo := repository.NewBoardRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// 指标
	if err := ws.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("[Server] 注册指标失败: %v", err)
	}

	// WebSocket Hub（配置了 Redis 时跨实例转发字段变更）
	var hubOpts []ws.HubOption
	if rdb := bootstrap.NewRedis(env.RedisURL); rdb != nil {
		fanout := ws.NewRedisFanout(rdb)
		defer fanout.Close()
		hubOpts = append(hubOpts, ws.WithFanout(fanout))
	}
	hub := ws.NewHub(boardRepo.(ws.BoardService), hubOpts...)

	// 依赖注入 - UseCase 层
	notificationUseCase := usecase.NewNotificationUseCase(notificationRepo)
	userUseCase := usecase.NewUserUseCase(userRepo, notificationUseCase)
	boardUseCase := usecase.NewBoardUseCase(boardRepo, userUseCase, notificationUseCase, hub)

	// 依赖注入 - Controller 层
	deps := &route.Dependencies{
		BoardController:        controller.NewBoardController(boardUseCase),
		UserController:         controller.NewUserController(userUseCase),
		NotificationController: controller.NewNotificationController(notificationUseCase),
		WSHandler:              controller.NewWSHandler(hub, boardUseCase, userUseCase, nil, env.AllowedOrigins),
		WebhookController:      controller.NewWebhookController(userRepo, userUseCase, env.WebhookSecret),
		MetricsHandler:         promhttp.Handler(),
	}

	// 启动 Hub 事件循环
	go hub.Run()

	// 配置 Gin 路由
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     env.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	route.Setup(router, deps)

	srv := &http.Server{
		Addr:    ":" + env.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[Server] 服务已启动: http://localhost:%s", env.Port)
		log.Printf("[Server] API 端点:")
		log.Printf("   GET    /health                        - 健康检查")
		log.Printf("   GET    /metrics                       - Prometheus 指标")
		log.Printf("   GET    /api/boards                    - 看板列表")
		log.Printf("   GET    /api/boards/:boardId           - 获取看板")
		log.Printf("   POST   /api/boards                    - 创建看板")
		log.Printf("   PATCH  /api/boards/:boardId/fields    - 修改看板字段")
		log.Printf("   DELETE /api/boards/:boardId           - 删除看板")
		log.Printf("   GET    /api/users                     - 用户列表")
		log.Printf("   PATCH  /api/users/:userId/fields      - 修改用户字段")
		log.Printf("   GET    /api/notifications             - 通知列表")
		log.Printf("   GET    /ws?boardId=xxx&token=xxx      - WebSocket 连接")
		log.Printf("   POST   /webhook/clerk                 - Clerk Webhook")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] 服务启动失败: %v", err)
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] 收到停机信号，正在优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("[Server] 服务强制关闭: %v", err)
	}

	log.Println("[Server] 服务已安全停止")
}
