package controller

import (
	"encoding/json"
	"net/http"

	"board-go-server/domain/entity"
	"board-go-server/domain/repository"
	"board-go-server/usecase"

	"github.com/gin-gonic/gin"
)

// UserService 用户用例（*usecase.UserUseCase 实现）
type UserService interface {
	List(query repository.UserQuery) (repository.PageResult[entity.User], error)
	UpdateUserField(actorID, userID, path string, raw json.RawMessage) (*usecase.FieldUpdate, error)
}

// UserController 用户管理
type UserController struct {
	users UserService
}

// NewUserController 构造函数
func NewUserController(users UserService) *UserController {
	return &UserController{users: users}
}

// ListUsers 用户列表
// GET /api/users?search=&role=&cursor=&limit=
func (uc *UserController) ListUsers(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	result, err := uc.users.List(repository.UserQuery{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]UserResponse, 0, len(result.Items))
	for _, u := range result.Items {
		items = append(items, toUserResponse(u))
	}
	c.JSON(http.StatusOK, ListResponse[UserResponse]{
		Items:      items,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

// UpdateUserField 管理员修改用户角色或停用状态
// PATCH /api/users/:userId/fields
func (uc *UserController) UpdateUserField(c *gin.Context) {
	var req FieldUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path 和 value 不能为空", Code: "INVALID_REQUEST"})
		return
	}

	actorID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := uc.users.UpdateUserField(actorID, c.Param("userId"), req.Path, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
