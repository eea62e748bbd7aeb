package repository

import (
	"time"

	"board-go-server/domain/entity"
)

type UserRepository interface {
	// Upsert = Update + Insert（存在则更新，不存在则创建）
	Upsert(user *entity.User) error

	// 根据 Clerk user_id 获取用户，不存在时返回 (nil, nil)
	GetByID(userID string) (*entity.User, error)

	// UpdateFields 部分字段更新，返回服务端更新时间
	UpdateFields(userID string, updates map[string]any) (time.Time, error)

	// List 游标分页查询，按姓名升序
	List(query UserQuery) (PageResult[entity.User], error)

	// Delete 删除用户（Clerk user.deleted 事件）
	Delete(userID string) error
}
