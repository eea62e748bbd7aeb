package repository

import (
	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	domainRepo "board-go-server/domain/repository"

	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 构造函数
func NewNotificationRepository(db *gorm.DB) domainRepo.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(notification *entity.Notification) error {
	return r.db.Create(notification).Error
}

func (r *notificationRepository) ListByUser(userID string, unreadOnly bool, limit int) ([]entity.Notification, error) {
	tx := r.db.Where("user_id = ?", userID)
	if unreadOnly {
		tx = tx.Where("is_read = ?", false)
	}

	var list []entity.Notification
	err := tx.Order("created_at DESC").Limit(domainRepo.NormalizeLimit(limit)).Find(&list).Error
	return list, err
}

func (r *notificationRepository) MarkRead(userID, notificationID string) error {
	result := r.db.Model(&entity.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) CountUnread(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&entity.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
