package usecase

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	"board-go-server/domain/repository"

	"github.com/patrickmn/go-cache"
)

// 用户缓存：鉴权时频繁按 ID 查询
const (
	userCacheTTL     = time.Minute
	userCacheCleanup = 5 * time.Minute
)

// UserUseCase 用户管理
type UserUseCase struct {
	repo          repository.UserRepository
	notifications *NotificationUseCase
	cache         *cache.Cache
}

// NewUserUseCase 构造函数
func NewUserUseCase(repo repository.UserRepository, notifications *NotificationUseCase) *UserUseCase {
	return &UserUseCase{
		repo:          repo,
		notifications: notifications,
		cache:         cache.New(userCacheTTL, userCacheCleanup),
	}
}

// Lookup 按 ID 获取用户（带缓存），不存在返回 (nil, nil)
func (uc *UserUseCase) Lookup(userID string) (*entity.User, error) {
	if v, ok := uc.cache.Get(userID); ok {
		u := v.(entity.User)
		return &u, nil
	}

	user, err := uc.repo.GetByID(userID)
	if err != nil || user == nil {
		return nil, err
	}
	uc.cache.Set(userID, *user, cache.DefaultExpiration)
	return user, nil
}

// Forget 清除缓存（Webhook 同步后调用）
func (uc *UserUseCase) Forget(userID string) {
	uc.cache.Delete(userID)
}

// List 用户列表
func (uc *UserUseCase) List(query repository.UserQuery) (repository.PageResult[entity.User], error) {
	if query.Role != "" && !entity.Role(query.Role).Valid() {
		return repository.PageResult[entity.User]{}, fmt.Errorf("%w: role %q", domainErrors.ErrInvalidFieldValue, query.Role)
	}
	query.Limit = repository.NormalizeLimit(query.Limit)
	return uc.repo.List(query)
}

// UpdateUserField 管理员修改用户字段（role / suspended）
func (uc *UserUseCase) UpdateUserField(actorID, userID, path string, raw json.RawMessage) (*FieldUpdate, error) {
	actor, err := uc.Lookup(actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() || actor.Suspended {
		return nil, domainErrors.ErrPermissionDenied
	}

	target, err := uc.repo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domainErrors.ErrUserNotFound
	}

	var (
		value   any
		updates map[string]any
		body    string
	)

	switch path {
	case "role":
		s, err := decodeString(raw)
		if err != nil {
			return nil, err
		}
		role := entity.Role(s)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: role %q", domainErrors.ErrInvalidFieldValue, s)
		}
		if userID == actorID && role != entity.RoleAdmin {
			return nil, fmt.Errorf("%w: cannot demote yourself", domainErrors.ErrInvalidFieldValue)
		}
		value = string(role)
		updates = map[string]any{"role": role}
		body = fmt.Sprintf("Your role is now %s", role)

	case "suspended":
		b, err := decodeBool(raw)
		if err != nil {
			return nil, err
		}
		if userID == actorID && b {
			return nil, fmt.Errorf("%w: cannot suspend yourself", domainErrors.ErrInvalidFieldValue)
		}
		value = b
		updates = map[string]any{"suspended": b}
		body = "Your account has been reactivated"
		if b {
			body = "Your account has been suspended"
		}

	default:
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrInvalidFieldPath, path)
	}

	updatedAt, err := uc.repo.UpdateFields(userID, updates)
	if err != nil {
		return nil, err
	}
	uc.Forget(userID)

	log.Printf("[User] ✏️ %s 修改了用户 %s 的 %s", actorID, userID, path)
	if uc.notifications != nil {
		_ = uc.notifications.Notify(userID, "Account updated", body, "user:"+userID+":"+path)
	}

	return &FieldUpdate{Path: path, Value: value, UpdatedAt: updatedAt}, nil
}
