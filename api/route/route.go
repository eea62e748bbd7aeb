package route

import (
	"net/http"

	"board-go-server/api/controller"
	"board-go-server/api/middleware"

	"github.com/gin-gonic/gin"
)

// Dependencies 路由依赖注入结构
type Dependencies struct {
	BoardController        *controller.BoardController
	UserController         *controller.UserController
	NotificationController *controller.NotificationController
	WSHandler              *controller.WSHandler
	WebhookController      *controller.WebhookController
	MetricsHandler         http.Handler

	// Auth 为空时使用 Clerk JWT 中间件
	Auth gin.HandlerFunc
}

// Setup 配置所有路由
func Setup(router *gin.Engine, deps *Dependencies) {
	// --- 公开路由 ---

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "board-go-server",
		})
	})

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// Clerk Webhook（使用签名验证，不使用 JWT）
	if deps.WebhookController != nil {
		router.POST("/webhook/clerk", deps.WebhookController.HandleClerkWebhook)
	}

	// --- WebSocket 路由 ---
	// WebSocket 自行在 Handler 中验证 Token
	if deps.WSHandler != nil {
		router.GET("/ws", deps.WSHandler.HandleWS)
	}

	// --- API 路由（需要 Clerk JWT 认证）---
	auth := deps.Auth
	if auth == nil {
		auth = middleware.ClerkAuth()
	}
	writes := middleware.RateLimit(5, 20)

	api := router.Group("/api")
	api.Use(auth)
	{
		// 看板
		api.GET("/boards", deps.BoardController.ListBoards)
		api.GET("/boards/:boardId", deps.BoardController.GetBoard)
		api.POST("/boards", writes, deps.BoardController.CreateBoard)
		api.DELETE("/boards/:boardId", writes, deps.BoardController.DeleteBoard)
		api.PATCH("/boards/:boardId/fields", writes, deps.BoardController.UpdateBoardField)

		// 用户
		api.GET("/users", deps.UserController.ListUsers)
		api.PATCH("/users/:userId/fields", writes, deps.UserController.UpdateUserField)

		// 通知
		api.GET("/notifications", deps.NotificationController.List)
		api.POST("/notifications/:id/read", deps.NotificationController.MarkRead)
	}
}
