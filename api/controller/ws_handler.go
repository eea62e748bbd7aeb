package controller

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"board-go-server/api/middleware"
	domainErrors "board-go-server/domain/errors"
	"board-go-server/internal/ws"
	"board-go-server/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler WebSocket 连接处理器
type WSHandler struct {
	hub      *ws.Hub
	boards   BoardService
	users    usecase.UserLookup
	verify   middleware.Verifier
	upgrader websocket.Upgrader
}

// NewWSHandler 构造函数
// verify 为 nil 时使用 Clerk 校验
func NewWSHandler(hub *ws.Hub, boards BoardService, users usecase.UserLookup, verify middleware.Verifier, allowedOrigins []string) *WSHandler {
	if verify == nil {
		verify = middleware.ClerkVerifier
	}
	return &WSHandler{
		hub:    hub,
		boards: boards,
		users:  users,
		verify: verify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 开发环境允许所有
				if origin == "" || strings.HasPrefix(origin, "http://localhost") {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Printf("[WS] ⚠️ 拒绝来自 %s 的连接", origin)
				return false
			},
		},
	}
}

// HandleWS 处理 WebSocket 升级请求
// GET /ws?boardId=xxx&token=xxx
// WebSocket 不支持自定义 Header，JWT 放在查询参数或 Sec-WebSocket-Protocol 中
func (h *WSHandler) HandleWS(c *gin.Context) {
	boardID := c.Query("boardId")
	if boardID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "boardId 不能为空", Code: "INVALID_REQUEST"})
		return
	}

	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Sec-WebSocket-Protocol")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "缺少认证 token", Code: "UNAUTHORIZED"})
		return
	}

	userID, _, err := h.verify(c.Request.Context(), token)
	if err != nil {
		log.Printf("[WS] ❌ Token 验证失败: %v", err)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Token 无效", Code: "UNAUTHORIZED", Details: err.Error()})
		return
	}

	h.serve(c, boardID, userID)
}

// serve 认证之后的流程：权限 -> 房间 -> 升级 -> 注册
func (h *WSHandler) serve(c *gin.Context, boardID, userID string) {
	canAddNotes, err := h.boards.CanAddNotes(boardID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	room, err := h.hub.GetOrCreateRoom(boardID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrBoardNotFound) || errors.Is(err, domainErrors.ErrRoomClosing) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] ❌ 升级 WebSocket 失败: %v", err)
		return
	}

	userInfo := ws.UserInfo{
		UserID:      userID,
		UserName:    h.displayName(userID),
		Color:       generateUserColor(userID),
		CanAddNotes: canAddNotes,
	}

	client := ws.NewClient(h.hub, conn, boardID, userInfo)
	if err := room.Register(client); err != nil {
		log.Printf("[WS] ❌ 注册客户端失败: %v", err)
		conn.Close()
		return
	}

	log.Printf("[WS] ✅ 用户 [%s] 连接到看板 [%s] (canAddNotes=%v)", userInfo.UserName, boardID, canAddNotes)

	go client.WritePump()
	go client.ReadPump()
}

// displayName 从同步过来的用户表取名字，取不到就用 ID
func (h *WSHandler) displayName(userID string) string {
	if h.users == nil {
		return userID
	}
	user, err := h.users.Lookup(userID)
	if err != nil || user == nil || user.Name == "" {
		return userID
	}
	return user.Name
}

// generateUserColor 根据用户 ID 生成协作光标颜色
func generateUserColor(userID string) string {
	colors := []string{
		"#FF6B6B", // 红色
		"#4ECDC4", // 青色
		"#45B7D1", // 蓝色
		"#96CEB4", // 绿色
		"#FFEAA7", // 黄色
		"#DDA0DD", // 梅红
		"#98D8C8", // 薄荷
		"#F7DC6F", // 金色
	}

	hash := 0
	for _, c := range userID {
		hash = hash*31 + int(c)
	}
	if hash < 0 {
		hash = -hash
	}
	return colors[hash%len(colors)]
}
