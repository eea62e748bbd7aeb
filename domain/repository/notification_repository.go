package repository

import "board-go-server/domain/entity"

// NotificationRepository 站内通知仓库
type NotificationRepository interface {
	Create(notification *entity.Notification) error

	// ListByUser 按时间倒序返回用户通知
	ListByUser(userID string, unreadOnly bool, limit int) ([]entity.Notification, error)

	// MarkRead 标记已读，通知不属于该用户时返回 ErrNotificationNotFound
	MarkRead(userID, notificationID string) error

	CountUnread(userID string) (int64, error)
}
