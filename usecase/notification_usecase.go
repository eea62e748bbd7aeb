package usecase

import (
	"log"

	"board-go-server/domain/entity"
	"board-go-server/domain/repository"

	"github.com/google/uuid"
)

// NotificationUseCase 站内通知
type NotificationUseCase struct {
	repo repository.NotificationRepository
}

// NewNotificationUseCase 构造函数
func NewNotificationUseCase(repo repository.NotificationRepository) *NotificationUseCase {
	return &NotificationUseCase{repo: repo}
}

// Notify 给用户写一条通知
func (uc *NotificationUseCase) Notify(userID, title, body, tag string) error {
	n := &entity.Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
		Body:   body,
		Tag:    tag,
	}
	if err := uc.repo.Create(n); err != nil {
		log.Printf("[Notification] ⚠️ 写入通知失败 [%s]: %v", userID, err)
		return err
	}
	return nil
}

// List 返回通知列表和未读数
func (uc *NotificationUseCase) List(userID string, unreadOnly bool, limit int) ([]entity.Notification, int64, error) {
	limit = repository.NormalizeLimit(limit)

	items, err := uc.repo.ListByUser(userID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := uc.repo.CountUnread(userID)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// MarkRead 标记已读
func (uc *NotificationUseCase) MarkRead(userID, notificationID string) error {
	return uc.repo.MarkRead(userID, notificationID)
}
