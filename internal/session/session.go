package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	domainErrors "board-go-server/domain/errors"
	"board-go-server/internal/client"
	"board-go-server/internal/collection"
	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"

	"golang.org/x/sync/errgroup"
)

// ErrEnded 会话已结束（已退出登录）
var ErrEnded = errors.New("session ended")

// Identity 登录用户
type Identity struct {
	UserID    string
	Name      string
	Role      string
	Suspended bool
}

// IsAdmin 是否管理员
func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// Layout 看板列表的展示方式
type Layout string

const (
	LayoutGrid Layout = "grid"
	LayoutList Layout = "list"
)

// Config 会话依赖
type Config struct {
	Client   *client.Client
	Sink     notify.Sink
	Language notify.Language
	Layout   Layout
	Metrics  *optimistic.Metrics
	Timeout  time.Duration
}

// Session 一次登录的全部客户端状态
// 认证成功时 Start，退出登录时 End；组件通过它拿到 Store / Mutator / Center，而不是全局变量
type Session struct {
	client  *client.Client
	store   *optimistic.Store
	mutator *optimistic.Mutator
	center  *notify.Center

	mu       sync.RWMutex
	identity Identity
	layout   Layout
	unread   int64
	active   string
	sub      *client.Subscription
	views    map[*collection.View]func()
	ended    bool
}

// Start 认证成功后创建会话并拉取未读数
func Start(ctx context.Context, cfg Config, id Identity) (*Session, error) {
	if id.UserID == "" {
		return nil, domainErrors.ErrUnauthorized
	}
	if cfg.Client == nil {
		return nil, errors.New("session requires an api client")
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutGrid
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = optimistic.DefaultTimeout
	}

	center := notify.NewCenter(cfg.Sink, cfg.Language)
	store := optimistic.NewStore()
	opts := []optimistic.Option{optimistic.WithNotifier(center), optimistic.WithTimeout(cfg.Timeout)}
	if cfg.Metrics != nil {
		opts = append(opts, optimistic.WithMetrics(cfg.Metrics))
	}

	s := &Session{
		client:   cfg.Client,
		store:    store,
		mutator:  optimistic.NewMutator(store, opts...),
		center:   center,
		identity: id,
		layout:   cfg.Layout,
		views:    make(map[*collection.View]func()),
	}

	if err := s.Refresh(ctx); err != nil {
		log.Printf("[Session] ⚠️ 初始化刷新失败: %v", err)
	}
	log.Printf("[Session] 🔑 %s 登录", id.UserID)
	return s, nil
}

// ================= 访问器 =================

func (s *Session) Store() *optimistic.Store      { return s.store }
func (s *Session) Mutator() *optimistic.Mutator  { return s.mutator }
func (s *Session) Center() *notify.Center        { return s.center }
func (s *Session) Client() *client.Client        { return s.client }
func (s *Session) Language() notify.Language     { return s.center.Language() }
func (s *Session) SetLanguage(l notify.Language) { s.center.SetLanguage(l) }

// Identity 当前用户
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Layout 当前列表布局
func (s *Session) Layout() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// SetLayout 切换列表布局
func (s *Session) SetLayout(l Layout) {
	s.mu.Lock()
	s.layout = l
	s.mu.Unlock()
}

// Unread 未读通知数
func (s *Session) Unread() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Active 当前打开的看板
func (s *Session) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ================= 生命周期 =================

// Refresh 并发刷新未读数和当前看板元数据
func (s *Session) Refresh(ctx context.Context) error {
	if s.isEnded() {
		return ErrEnded
	}
	active := s.Active()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, unread, err := s.client.Notifications(ctx, true)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.unread = unread
		s.mu.Unlock()
		return nil
	})
	if active != "" {
		g.Go(func() error {
			board, err := s.client.GetBoard(ctx, active)
			if err != nil {
				return err
			}
			s.store.ApplyRemote(active, board.Fields(), board.UpdatedAt)
			return nil
		})
	}
	return g.Wait()
}

// MarkRead 标记通知已读并更新未读数
func (s *Session) MarkRead(ctx context.Context, notificationID string) error {
	if s.isEnded() {
		return ErrEnded
	}
	if err := s.client.MarkRead(ctx, notificationID); err != nil {
		return err
	}
	s.mu.Lock()
	if s.unread > 0 {
		s.unread--
	}
	s.mu.Unlock()
	return nil
}

// Switch 打开另一个看板：先关闭旧订阅，再加载元数据并订阅新看板
func (s *Session) Switch(ctx context.Context, boardID string) (*client.Subscription, error) {
	if s.isEnded() {
		return nil, ErrEnded
	}
	s.Leave()

	board, err := s.client.GetBoard(ctx, boardID)
	if err != nil {
		s.center.Notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgFetchFailed, Args: []any{boardID, err.Error()}, Err: err})
		return nil, err
	}
	s.store.Put(boardID, board.Fields(), board.UpdatedAt)

	sub, err := s.client.Subscribe(ctx, boardID, s.store, s.center)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		_ = sub.Close()
		return nil, ErrEnded
	}
	s.sub = sub
	s.active = boardID
	s.mu.Unlock()

	s.center.SetActive("board:" + boardID)
	return sub, nil
}

// Leave 关闭当前看板的订阅
func (s *Session) Leave() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.active = ""
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	s.center.SetActive("")
}

// End 退出登录：关闭订阅、清空提示去重，之后的操作返回 ErrEnded
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	id := s.identity.UserID
	s.mu.Unlock()

	s.mu.Lock()
	views := s.views
	s.views = make(map[*collection.View]func())
	s.mu.Unlock()
	for _, stop := range views {
		stop()
	}

	s.Leave()
	s.center.Reset()
	log.Printf("[Session] 👋 %s 退出登录", id)
}

func (s *Session) isEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// ================= 列表 =================

// WatchBoards 创建看板列表视图：每页结果写入 Store，视图作为副本跟随乐观修改
// 返回的 stop 注销副本并关闭视图，会话结束时也会自动调用
func (s *Session) WatchBoards(opts ...collection.Option) (*collection.View, func()) {
	return s.watch("boards", s.client.BoardsFetcher(), opts)
}

// WatchUsers 创建用户列表视图（管理后台）
func (s *Session) WatchUsers(opts ...collection.Option) (*collection.View, func()) {
	return s.watch("users", s.client.UsersFetcher(), opts)
}

func (s *Session) watch(name string, fetcher collection.Fetcher, opts []collection.Option) (*collection.View, func()) {
	base := []collection.Option{
		collection.WithNotifier(s.center),
	}
	var view *collection.View
	base = append(base, collection.WithOnPage(func(items []collection.Item) {
		for _, it := range items {
			if s.store.ApplyRemote(it.ID, it.Fields, it.UpdatedAt) {
				continue
			}
			// 没有新内容的行：用 Store 中的值（可能含在途修改）覆盖列表行
			if fields, ok := s.store.Get(it.ID); ok {
				for key, value := range fields {
					view.ApplyField(it.ID, key, value, true)
				}
			}
		}
	}))
	view = collection.NewView(name, fetcher, append(base, opts...)...)
	detach := s.store.Attach(view)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			detach()
			view.Close()
		})
	}

	s.mu.Lock()
	s.views[view] = stop
	s.mu.Unlock()

	return view, func() {
		s.mu.Lock()
		delete(s.views, view)
		s.mu.Unlock()
		stop()
	}
}

// ================= 乐观修改 =================

// UpdateBoardField 乐观修改看板字段，服务端拒绝时回滚并提示
// 本地已知所有者时，非所有者且非管理员直接拒绝；所有者未知时交给服务端判断
func (s *Session) UpdateBoardField(ctx context.Context, boardID, path string, value any, label string) (*optimistic.Intent, error) {
	return s.mutator.Apply(ctx, optimistic.Mutation{
		TargetID:  boardID,
		FieldPath: path,
		Next:      value,
		Label:     label,
		Persist:   s.client.BoardPersist(boardID, path, value),
		Check: func() error {
			if err := s.checkWritable(); err != nil {
				return err
			}
			return s.checkBoardOwner(boardID)
		},
	})
}

func (s *Session) checkBoardOwner(boardID string) error {
	id := s.Identity()
	if id.IsAdmin() {
		return nil
	}
	owner, ok := s.store.Field(boardID, "ownerId")
	if !ok {
		return nil
	}
	if o, _ := owner.(string); o != "" && o != id.UserID {
		return domainErrors.ErrPermissionDenied
	}
	return nil
}

// UpdateUserField 管理员乐观修改用户字段；非管理员在本地直接拒绝
func (s *Session) UpdateUserField(ctx context.Context, userID, path string, value any, label string) (*optimistic.Intent, error) {
	return s.mutator.Apply(ctx, optimistic.Mutation{
		TargetID:  userID,
		FieldPath: path,
		Next:      value,
		Label:     label,
		Persist:   s.client.UserPersist(userID, path, value),
		Check: func() error {
			if err := s.checkWritable(); err != nil {
				return err
			}
			if !s.Identity().IsAdmin() {
				return domainErrors.ErrPermissionDenied
			}
			return nil
		},
	})
}

func (s *Session) checkWritable() error {
	if s.isEnded() {
		return ErrEnded
	}
	if s.Identity().Suspended {
		return domainErrors.ErrPermissionDenied
	}
	return nil
}
