package controller

import (
	"net/http"
	"time"

	"board-go-server/domain/entity"

	"github.com/gin-gonic/gin"
)

// NotificationService 通知用例（*usecase.NotificationUseCase 实现）
type NotificationService interface {
	List(userID string, unreadOnly bool, limit int) ([]entity.Notification, int64, error)
	MarkRead(userID, notificationID string) error
}

// NotificationResponse 单条通知
type NotificationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationListResponse 通知列表 + 未读数
type NotificationListResponse struct {
	Items  []NotificationResponse `json:"items"`
	Unread int64                  `json:"unread"`
}

// NotificationController 站内通知
type NotificationController struct {
	notifications NotificationService
}

// NewNotificationController 构造函数
func NewNotificationController(notifications NotificationService) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// List 当前用户的通知
// GET /api/notifications?unread=true&limit=
func (nc *NotificationController) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	items, unread, err := nc.notifications.List(userID, c.Query("unread") == "true", limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := NotificationListResponse{Items: make([]NotificationResponse, 0, len(items)), Unread: unread}
	for _, n := range items {
		resp.Items = append(resp.Items, NotificationResponse{
			ID:        n.ID,
			Title:     n.Title,
			Body:      n.Body,
			Tag:       n.Tag,
			Read:      n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// MarkRead 标记已读
// POST /api/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := nc.notifications.MarkRead(userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
