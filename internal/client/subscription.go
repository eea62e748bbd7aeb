package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	domainErrors "board-go-server/domain/errors"
	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"
	"board-go-server/internal/ws"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	typingInterval = 2 * time.Second
	cursorInterval = 50 * time.Millisecond
)

// ErrPatchPending 上一个便利贴补丁还没有收到确认
var ErrPatchPending = errors.New("a notes patch is already in flight")

// Subscription 一个看板的实时订阅
// 收到的服务端推送写入 Store（记录 ID 即 boardID，便利贴文档在 content 字段）
type Subscription struct {
	client   *Client
	boardID  string
	conn     *websocket.Conn
	store    *optimistic.Store
	notifier notify.Notifier

	writeMu sync.Mutex
	typing  *rate.Limiter
	cursor  *rate.Limiter

	mu       sync.Mutex
	doc      json.RawMessage
	version  int64
	pending  json.RawMessage
	denied   bool
	presence map[string]ws.UserInfo

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe 连接 /ws 并开始接收推送
func (c *Client) Subscribe(ctx context.Context, boardID string, store *optimistic.Store, notifier notify.Notifier) (*Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL(boardID), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return nil, err
	}

	s := &Subscription{
		client:   c,
		boardID:  boardID,
		conn:     conn,
		store:    store,
		notifier: notifier,
		typing:   rate.NewLimiter(rate.Every(typingInterval), 1),
		cursor:   rate.NewLimiter(rate.Every(cursorInterval), 1),
		presence: make(map[string]ws.UserInfo),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	log.Printf("[Subscription] 🔌 已订阅看板 %s", boardID)
	return s, nil
}

// BoardID 订阅的看板
func (s *Subscription) BoardID() string { return s.boardID }

// Done 读循环退出时关闭
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Version 本地便利贴文档版本
func (s *Subscription) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Presence 房间内其他在线用户，按 UserID 排序
func (s *Subscription) Presence() []ws.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]ws.UserInfo, 0, len(s.presence))
	for _, u := range s.presence {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// Close 关闭订阅并等待读循环退出，可重复调用
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
		<-s.done
		log.Printf("[Subscription] 👋 已退订看板 %s", s.boardID)
	})
	return err
}

// Typing 正在输入提示；开始输入按固定间隔节流，停止输入总是发送
func (s *Subscription) Typing(typing bool) error {
	if typing && !s.typing.Allow() {
		return nil
	}
	return s.send(ws.TypeTyping, ws.TypingPayload{Typing: typing})
}

// MoveCursor 光标位置，超出频率的调用直接丢弃
func (s *Subscription) MoveCursor(x, y float64) error {
	if !s.cursor.Allow() {
		return nil
	}
	return s.send(ws.TypeCursorMove, map[string]float64{"x": x, "y": y})
}

// SendPatch 提交便利贴文档的 JSON Patch
// 同一时间只允许一个补丁在途，收到 ack 后才写入本地文档
func (s *Subscription) SendPatch(patches json.RawMessage) error {
	if _, err := jsonpatch.DecodePatch(patches); err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrInvalidFieldValue, err)
	}

	s.mu.Lock()
	if s.denied {
		s.mu.Unlock()
		s.notify(notify.Notice{Kind: notify.KindPermission, Key: notify.MsgCannotAddNotes})
		return domainErrors.ErrPermissionDenied
	}
	if s.pending != nil {
		s.mu.Unlock()
		return ErrPatchPending
	}
	s.pending = patches
	version := s.version
	s.mu.Unlock()

	err := s.send(ws.TypeOpPatch, ws.OpPatchPayload{Patches: patches, Version: version})
	if err != nil {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
	}
	return err
}

func (s *Subscription) send(t ws.MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, _ := json.Marshal(ws.WSMessage{Type: t, Payload: data, Timestamp: time.Now().UnixMilli()})

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return websocket.ErrCloseSent
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// ================= 读循环 =================

func (s *Subscription) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				log.Printf("[Subscription] ❌ 看板 %s 连接中断: %v", s.boardID, err)
				s.notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgSubscriptionLost, Args: []any{s.boardID}, Err: err})
			}
			return
		}

		var msg ws.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[Subscription] ⚠️ 无法解析消息: %v", err)
			continue
		}
		if stop := s.handle(msg); stop {
			_ = s.conn.Close()
			return
		}
	}
}

// handle 处理一条推送，返回 true 表示订阅应当结束
func (s *Subscription) handle(msg ws.WSMessage) bool {
	switch msg.Type {
	case ws.TypeSync:
		var p ws.SyncPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		s.mu.Lock()
		for _, u := range p.Users {
			s.presence[u.UserID] = u
		}
		s.mu.Unlock()
		s.replaceDoc(p.Content, p.Version)

	case ws.TypeUserJoin, ws.TypeUserLeave:
		var u ws.UserInfo
		if err := json.Unmarshal(msg.Payload, &u); err != nil {
			return false
		}
		s.mu.Lock()
		if msg.Type == ws.TypeUserJoin {
			s.presence[u.UserID] = u
		} else {
			delete(s.presence, u.UserID)
		}
		s.mu.Unlock()

	case ws.TypeOpPatch:
		var p ws.OpPatchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		s.applyRemotePatch(p.Patches, p.Version)

	case ws.TypeAck:
		var p ws.AckPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		s.confirmPatch(p.Version)

	case ws.TypeFieldChanged:
		var p ws.FieldChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		var value any
		if err := json.Unmarshal(p.Value, &value); err != nil {
			return false
		}
		s.store.ApplyRemoteField(s.boardID, p.Path, value, time.Unix(0, p.ServerTime))

	case ws.TypeError:
		var p ws.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		return s.handleError(p)
	}
	return false
}

func (s *Subscription) handleError(p ws.ErrorPayload) bool {
	switch p.Code {
	case ws.ErrBoardDeleted:
		s.store.Remove(s.boardID)
		s.notify(notify.Notice{Kind: notify.KindInfo, Key: notify.MsgBoardDeleted, Args: []any{s.boardID}})
		return true

	case ws.ErrPermissionDenied:
		s.mu.Lock()
		s.denied = true
		s.pending = nil
		s.mu.Unlock()
		s.notify(notify.Notice{Kind: notify.KindPermission, Key: notify.MsgCannotAddNotes})

	case ws.ErrVersionConflict, ws.ErrPatchFailed, ws.ErrPatchInvalid:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgNotesConflict})
		go s.resync()

	default:
		log.Printf("[Subscription] ⚠️ 服务端错误 %s: %s", p.Code, p.Message)
	}
	return false
}

// confirmPatch 收到 ack，把在途补丁写入本地文档
func (s *Subscription) confirmPatch(version int64) {
	s.mu.Lock()
	patches := s.pending
	s.pending = nil
	doc := s.doc
	s.mu.Unlock()

	if patches == nil {
		return
	}
	next, err := applyPatch(doc, patches)
	if err != nil {
		log.Printf("[Subscription] ⚠️ 本地应用已确认补丁失败，重新同步: %v", err)
		go s.resync()
		return
	}
	s.replaceDoc(next, version)
}

// applyRemotePatch 其他成员的补丁，基线版本对不上时整体重新拉取
func (s *Subscription) applyRemotePatch(patches json.RawMessage, base int64) {
	s.mu.Lock()
	doc, version := s.doc, s.version
	s.mu.Unlock()

	if base != version {
		log.Printf("[Subscription] ⏭️ 补丁基线 %d 与本地 %d 不一致，重新同步", base, version)
		go s.resync()
		return
	}
	next, err := applyPatch(doc, patches)
	if err != nil {
		go s.resync()
		return
	}
	s.replaceDoc(next, base+1)
}

// resync 通过 REST 拉取最新文档
func (s *Subscription) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	board, err := s.client.GetBoard(ctx, s.boardID)
	if err != nil {
		log.Printf("[Subscription] ❌ 重新同步看板 %s 失败: %v", s.boardID, err)
		return
	}
	select {
	case <-s.closed:
		return
	default:
	}
	s.replaceDoc(board.Content, board.Version)
}

// replaceDoc 更新本地文档并写入 Store
// 便利贴文档按版本号排序，不参与服务端时间戳比较
func (s *Subscription) replaceDoc(doc json.RawMessage, version int64) {
	var content any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &content); err != nil {
			log.Printf("[Subscription] ⚠️ 文档不是合法 JSON: %v", err)
			return
		}
	}

	s.mu.Lock()
	if version < s.version {
		s.mu.Unlock()
		return
	}
	s.doc = doc
	s.version = version
	s.mu.Unlock()

	s.store.ApplyRemote(s.boardID, optimistic.Fields{"content": content}, time.Time{})
}

func (s *Subscription) notify(n notify.Notice) {
	if s.notifier == nil {
		return
	}
	if n.Tag == "" {
		n.Tag = "ws:" + s.boardID + ":" + string(n.Key)
	}
	s.notifier.Notify(n)
}

func applyPatch(doc, patches json.RawMessage) (json.RawMessage, error) {
	patch, err := jsonpatch.DecodePatch(patches)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		doc = json.RawMessage(`{}`)
	}
	return patch.Apply(doc)
}
