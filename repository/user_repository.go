package repository

import (
	"errors"
	"strings"
	"time"

	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	domainRepo "board-go-server/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository GORM 实现 UserRepository 接口
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 构造函数
func NewUserRepository(db *gorm.DB) domainRepo.UserRepository {
	return &userRepository{db: db}
}

// Upsert 创建或更新用户（Clerk Webhook 同步使用）
// 冲突时只更新资料字段，role/suspended 由管理后台维护，不被 Webhook 覆盖
func (r *userRepository) Upsert(user *entity.User) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}}, // 冲突字段
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "avatar_url", "updated_at"}),
	}).Create(user).Error
}

// GetByID 根据 Clerk user_id 查询用户
func (r *userRepository) GetByID(userID string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &user, err
}

// UpdateFields 部分字段更新
func (r *userRepository) UpdateFields(userID string, updates map[string]any) (time.Time, error) {
	now := time.Now().UTC()
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["updated_at"] = now

	result := r.db.Model(&entity.User{}).Where("id = ?", userID).Updates(values)
	if result.Error != nil {
		return time.Time{}, result.Error
	}
	if result.RowsAffected == 0 {
		return time.Time{}, domainErrors.ErrUserNotFound
	}
	return now, nil
}

// List 游标分页：name ASC, id ASC
func (r *userRepository) List(query domainRepo.UserQuery) (domainRepo.PageResult[entity.User], error) {
	var result domainRepo.PageResult[entity.User]
	limit := domainRepo.NormalizeLimit(query.Limit)

	cursor, err := decodeCursor(query.Cursor)
	if err != nil {
		return result, err
	}

	tx := r.db.Model(&entity.User{})
	if query.Role != "" {
		tx = tx.Where("role = ?", query.Role)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		tx = tx.Where("LOWER(name) LIKE ?", escapeLike(strings.ToLower(search))+"%")
	}
	if cursor != nil {
		tx = tx.Where("(name > ?) OR (name = ? AND id > ?)", cursor.Key, cursor.Key, cursor.ID)
	}

	var users []entity.User
	if err := tx.Order("name ASC").Order("id ASC").Limit(limit + 1).Find(&users).Error; err != nil {
		return result, err
	}

	if len(users) > limit {
		users = users[:limit]
		result.HasMore = true
	}
	result.Items = users
	if n := len(users); n > 0 {
		result.NextCursor = encodeCursor(users[n-1].Name, users[n-1].ID)
	}
	return result, nil
}

// Delete 删除用户
func (r *userRepository) Delete(userID string) error {
	return r.db.Where("id = ?", userID).Delete(&entity.User{}).Error
}
