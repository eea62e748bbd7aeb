package controller

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"board-go-server/api/middleware"
	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"

	"github.com/gin-gonic/gin"
)

// --- 响应结构定义 ---

// ErrorResponse 错误响应结构
// Code 供客户端区分"权限不足"和普通失败
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// MessageResponse 消息响应结构
type MessageResponse struct {
	Message string `json:"message"`
	BoardID string `json:"boardId,omitempty"`
}

// ListResponse 游标分页响应
type ListResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// FieldUpdateRequest 按点分路径修改字段
type FieldUpdateRequest struct {
	Path  string          `json:"path" binding:"required"`
	Value json.RawMessage `json:"value" binding:"required"`
}

// UserResponse 用户列表行
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	Role      entity.Role `json:"role"`
	Suspended bool        `json:"suspended"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toUserResponse(u entity.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
		Suspended: u.Suspended,
		UpdatedAt: u.UpdatedAt,
	}
}

// --- 错误映射 ---

// respondError 领域错误 -> HTTP 状态码
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, domainErrors.ErrBoardNotFound),
		errors.Is(err, domainErrors.ErrUserNotFound),
		errors.Is(err, domainErrors.ErrNotificationNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domainErrors.ErrPermissionDenied):
		status, code = http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, domainErrors.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domainErrors.ErrBoardAlreadyExists),
		errors.Is(err, domainErrors.ErrOptimisticLock):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domainErrors.ErrRoomClosing):
		status, code = http.StatusServiceUnavailable, "ROOM_CLOSING"
	case errors.Is(err, domainErrors.ErrInvalidFieldPath),
		errors.Is(err, domainErrors.ErrInvalidFieldValue),
		errors.Is(err, domainErrors.ErrInvalidCursor):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}

	if status == http.StatusInternalServerError {
		log.Printf("[API] ❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// currentUser 取出认证中间件注入的用户 ID
func currentUser(c *gin.Context) (string, bool) {
	userID, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未获取到用户信息", Code: "UNAUTHORIZED"})
		return "", false
	}
	return userID.(string), true
}

// queryLimit 解析 limit 参数，缺省返回 0（由 usecase 使用默认值）
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit 必须是非负整数", Code: "INVALID_REQUEST"})
		return 0, false
	}
	return n, true
}
