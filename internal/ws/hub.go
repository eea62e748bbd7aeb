package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	domainErrors "board-go-server/domain/errors"
)

// ========== Actor Model: Hub 是生死的唯一仲裁者 ==========
// Hub 不处理任何业务消息，只管理 Room 的生命周期和跨实例广播

var errRoomStopping = domainErrors.ErrRoomClosing

// Hub 维护房间目录
type Hub struct {
	rooms        map[string]*Room
	mu           sync.RWMutex
	idleRoom     chan *Room // Room 空闲信号（请求销毁）
	boardService BoardService
	fanout       Fanout
}

// BoardService 接口，用于数据库操作
type BoardService interface {
	// GetBoardState 返回看板内容，看板不存在返回 (nil, 0, ErrBoardNotFound)
	GetBoardState(boardID string) ([]byte, int64, error)
	// BoardExists 检查看板是否存在
	BoardExists(boardID string) (bool, error)
	// SaveBoardState 保存看板内容（支持版本跳跃）
	// oldVersion: 上次持久化的版本（用于乐观锁检查）
	// newVersion: 当前内存中的版本（要写入 DB）
	SaveBoardState(boardID string, state []byte, oldVersion, newVersion int64) error
}

// HubOption Hub 可选配置
type HubOption func(*Hub)

// WithFanout 多实例部署时通过 Fanout 转发字段变更
func WithFanout(f Fanout) HubOption {
	return func(h *Hub) {
		if f != nil {
			h.fanout = f
		}
	}
}

// NewHub 创建 Hub 实例
func NewHub(boardService BoardService, opts ...HubOption) *Hub {
	h := &Hub{
		rooms:        make(map[string]*Room),
		idleRoom:     make(chan *Room, 16),
		boardService: boardService,
		fanout:       NoopFanout{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run Hub 事件循环
func (h *Hub) Run() {
	log.Println("[Hub] 🚀 Hub 已启动（生死仲裁者）")

	go func() {
		if err := h.fanout.Subscribe(context.Background(), h.deliverLocal); err != nil {
			log.Printf("[Hub] ⚠️ Fanout 订阅结束: %v", err)
		}
	}()

	for room := range h.idleRoom {
		// handleIdleRoom 会阻塞等待刷盘完成，放到 goroutine 里避免卡住事件循环
		go h.handleIdleRoom(room)
	}
}

// handleIdleRoom 处理空闲房间（双重检查后决定是否销毁）
// 先刷盘，再从 Hub 移除，并检查指针同一性
func (h *Hub) handleIdleRoom(room *Room) {
	// 双重检查：Room 可能在我们处理期间又有人加入了
	if room.ClientCount() > 0 {
		log.Printf("[Hub] 🔄 房间 %s 已有新用户，取消销毁", room.ID)
		return
	}

	room.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	// 防止 GetOrCreateRoom 在刷盘期间创建了新房间，结果被我们删了
	if currentRoom, ok := h.rooms[room.ID]; ok && currentRoom == room {
		delete(h.rooms, room.ID)
		roomsGauge.Dec()
		log.Printf("[Hub] 🗑️ 房间 %s 已销毁", room.ID)
	} else {
		log.Printf("[Hub] ⚠️ 房间 %s 销毁时发现已被替换或移除，跳过删除", room.ID)
	}
}

// GetRoom 只读获取房间，不创建（供 HTTP GET 请求使用）
// 正在停止的房间仍持有最新数据，照样返回
func (h *Hub) GetRoom(roomID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

// GetOrCreateRoom 线程安全地获取或创建房间
// 只有数据库中存在的看板才会创建房间
func (h *Hub) GetOrCreateRoom(roomID string) (*Room, error) {
	h.mu.RLock()
	room, exists := h.rooms[roomID]
	h.mu.RUnlock()

	if exists {
		if room.IsStopping() {
			log.Printf("[Hub] ⏳ 房间 %s 正在关闭，请客户端重试", roomID)
			return nil, domainErrors.ErrRoomClosing
		}
		return room, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// 双重检查
	room, exists = h.rooms[roomID]
	if exists {
		if room.IsStopping() {
			log.Printf("[Hub] ⏳ 房间 %s 正在关闭，请客户端重试", roomID)
			return nil, domainErrors.ErrRoomClosing
		}
		return room, nil
	}

	state, version, err := h.boardService.GetBoardState(roomID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrBoardNotFound) {
			log.Printf("[Hub] ❌ 看板 %s 不存在，拒绝创建房间", roomID)
			return nil, domainErrors.ErrBoardNotFound
		}
		log.Printf("[Hub] ⚠️ 加载看板 %s 失败: %v", roomID, err)
		return nil, err
	}

	room = NewRoom(roomID, state, h.boardService, h)
	room.Version = version
	room.lastPersistedVersion = version
	h.rooms[roomID] = room
	roomsGauge.Inc()

	log.Printf("[Hub] 🏠 创建房间 %s，版本: %d", roomID, version)
	return room, nil
}

// NotifyIdle 供 Room 调用，通知 Hub 房间空闲
func (h *Hub) NotifyIdle(room *Room) {
	h.idleRoom <- room
}

// CloseRoom 强制关闭房间（删除看板时调用）
// 先关闭房间并刷盘，后删数据库
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	room, exists := h.rooms[roomID]
	if !exists {
		h.mu.Unlock()
		log.Printf("[Hub] ℹ️ 房间 %s 不存在于内存中，无需关闭", roomID)
		return
	}
	// 先从 map 中移除（防止新用户加入）
	delete(h.rooms, roomID)
	roomsGauge.Dec()
	h.mu.Unlock()

	room.StopWithReason(ErrBoardDeleted, "看板已被删除")
	log.Printf("[Hub] 💀 强制关闭房间 %s（看板被删除）", roomID)
}

// PublishFieldChange 推送已确认的字段变更：本实例房间直接广播，其他实例经 Fanout 转发
func (h *Hub) PublishFieldChange(boardID, path string, value any, serverTime time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(FieldChangedPayload{
		BoardID:    boardID,
		Path:       path,
		Value:      raw,
		ServerTime: serverTime.UnixNano(),
	})
	msg, _ := json.Marshal(WSMessage{
		Type:      TypeFieldChanged,
		SenderID:  "server",
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})

	h.deliverLocal(boardID, msg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.fanout.Publish(ctx, boardID, msg); err != nil {
		log.Printf("[Hub] ⚠️ Fanout 发布失败 [%s]: %v", boardID, err)
		return err
	}
	return nil
}

// deliverLocal 投递到本实例内的房间，房间不在内存则忽略
func (h *Hub) deliverLocal(boardID string, msg []byte) {
	room := h.GetRoom(boardID)
	if room == nil || room.IsStopping() {
		return
	}
	room.Broadcast(msg, nil, true)
}
