package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"board-go-server/domain/entity"
	"board-go-server/domain/repository"
	"board-go-server/usecase"

	"github.com/gin-gonic/gin"
)

// BoardService 看板用例（*usecase.BoardUseCase 实现）
type BoardService interface {
	GetBoard(boardID string) (*entity.Board, error)
	CreateBoard(boardID, title string, visibility entity.Visibility, ownerID string) (*entity.Board, error)
	DeleteBoard(boardID, userID string) error
	ListBoards(query repository.BoardQuery) (repository.PageResult[entity.Board], error)
	UpdateBoardField(boardID, userID, path string, raw json.RawMessage) (*usecase.FieldUpdate, error)
	CanAddNotes(boardID, userID string) (bool, error)
}

// BoardResponse 看板详情
type BoardResponse struct {
	BoardID     string               `json:"boardId"`
	Title       string               `json:"title"`
	Visibility  entity.Visibility    `json:"visibility"`
	Permissions entity.BoardSettings `json:"permissions"`
	Content     json.RawMessage      `json:"content,omitempty"`
	Version     int64                `json:"version"`
	OwnerID     string               `json:"ownerId"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// toBoardResponse 权限字段在这里按当前 Schema 补齐默认值
func toBoardResponse(b *entity.Board, withContent bool) BoardResponse {
	settings, _ := entity.DecodeBoardSettings(b.Permissions)
	resp := BoardResponse{
		BoardID:     b.BoardID,
		Title:       b.Title,
		Visibility:  b.Visibility,
		Permissions: settings,
		Version:     b.Version,
		OwnerID:     b.OwnerID,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	if withContent {
		resp.Content = json.RawMessage(b.Content)
	}
	return resp
}

// BoardController 看板 HTTP 控制器
type BoardController struct {
	boards BoardService
}

// NewBoardController 创建 BoardController 实例
func NewBoardController(boards BoardService) *BoardController {
	return &BoardController{boards: boards}
}

// ListBoards 看板列表
// GET /api/boards?search=&visibility=&mine=true&cursor=&limit=
func (bc *BoardController) ListBoards(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	query := repository.BoardQuery{
		Search:     c.Query("search"),
		Visibility: c.Query("visibility"),
		Cursor:     c.Query("cursor"),
		Limit:      limit,
	}
	if c.Query("mine") == "true" {
		query.OwnerID = userID
	}

	result, err := bc.boards.ListBoards(query)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]BoardResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, toBoardResponse(&result.Items[i], false))
	}
	c.JSON(http.StatusOK, ListResponse[BoardResponse]{
		Items:      items,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

// GetBoard 获取看板
// GET /api/boards/:boardId
// 便利贴文档优先读 Hub 内存，回退到数据库
func (bc *BoardController) GetBoard(c *gin.Context) {
	board, err := bc.boards.GetBoard(c.Param("boardId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBoardResponse(board, true))
}

// CreateBoardRequest 创建看板请求结构
type CreateBoardRequest struct {
	BoardID    string            `json:"boardId"`
	Title      string            `json:"title"`
	Visibility entity.Visibility `json:"visibility"`
}

// CreateBoard 创建新看板
// POST /api/boards
func (bc *BoardController) CreateBoard(c *gin.Context) {
	var req CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求体格式错误", Code: "INVALID_REQUEST", Details: err.Error()})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	board, err := bc.boards.CreateBoard(req.BoardID, req.Title, req.Visibility, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBoardResponse(board, true))
}

// DeleteBoard 删除看板
// DELETE /api/boards/:boardId
// 注意：此操作会强制关闭协同房间，所有在线用户会收到 BOARD_DELETED
func (bc *BoardController) DeleteBoard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	boardID := c.Param("boardId")
	if err := bc.boards.DeleteBoard(boardID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "看板已删除", BoardID: boardID})
}

// UpdateBoardField 修改看板字段
// PATCH /api/boards/:boardId/fields
// 请求体: { "path": "permissions.whoCanChat", "value": "members" }
// 响应体: { "path": ..., "value": 服务端最终值, "updatedAt": 服务端时间 }
func (bc *BoardController) UpdateBoardField(c *gin.Context) {
	var req FieldUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path 和 value 不能为空", Code: "INVALID_REQUEST"})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := bc.boards.UpdateBoardField(c.Param("boardId"), userID, req.Path, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
