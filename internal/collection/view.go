package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"
)

// DefaultSearchDebounce 搜索框输入防抖
const DefaultSearchDebounce = 300 * time.Millisecond

// Item 集合中的一条记录
type Item struct {
	ID        string
	Fields    optimistic.Fields
	UpdatedAt time.Time // 服务端时间戳
}

// Filter 过滤条件：自由文本搜索 + 结构化参数
type Filter struct {
	Search string
	Params map[string]string
}

// Equal 判断两个过滤条件是否相同
func (f Filter) Equal(o Filter) bool {
	return f.Search == o.Search && maps.Equal(f.Params, o.Params)
}

func (f Filter) clone() Filter {
	return Filter{Search: f.Search, Params: maps.Clone(f.Params)}
}

// PageRequest 分页请求
type PageRequest struct {
	Filter Filter
	Cursor string
	Limit  int
}

// Page 一页数据，NextCursor 为空时以最后一条记录的 ID 作为游标
type Page struct {
	Items      []Item
	NextCursor string
}

// Fetcher 远端分页查询
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context, req PageRequest) (Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	return f(ctx, req)
}

// FetchError 分页读取失败，已加载的数据保持不变
type FetchError struct {
	Collection string
	Cursor     string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (cursor %q): %v", e.Collection, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrClosed 视图已卸载
var ErrClosed = errors.New("collection view closed")

// Option 配置项
type Option func(*View)

// WithPageSize 每页条数
func WithPageSize(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.pageSize = n
		}
	}
}

// WithDebounce 搜索防抖时长
func WithDebounce(d time.Duration) Option {
	return func(v *View) { v.debouncer = NewDebouncer(d) }
}

// WithNotifier 读取失败时的提示出口
func WithNotifier(n notify.Notifier) Option {
	return func(v *View) { v.notifier = n }
}

// WithOnPage 每页数据落地后回调（在视图锁外调用），通常用于写入 optimistic.Store
func WithOnPage(fn func(items []Item)) Option {
	return func(v *View) { v.onPage = fn }
}

// View 远端集合的分页 + 过滤视图
// 每次加载带一个代号，过滤条件变化后旧代号的响应一律丢弃
type View struct {
	name      string
	fetcher   Fetcher
	pageSize  int
	debouncer *Debouncer
	notifier  notify.Notifier
	onPage    func(items []Item)

	mu      sync.Mutex
	filter  Filter
	items   []Item
	index   map[string]int
	cursor  string
	hasMore bool
	loading bool
	gen     uint64
	closed  bool
}

// NewView 创建视图
func NewView(name string, fetcher Fetcher, opts ...Option) *View {
	v := &View{
		name:      name,
		fetcher:   fetcher,
		pageSize:  20,
		debouncer: NewDebouncer(DefaultSearchDebounce),
		index:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// LoadInitial 清空并按新过滤条件加载第一页
func (v *View) LoadInitial(ctx context.Context, filter Filter) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.gen++
	gen := v.gen
	v.filter = filter.clone()
	v.items = nil
	v.index = make(map[string]int)
	v.cursor = ""
	v.hasMore = false
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetcher.FetchPage(ctx, PageRequest{Filter: filter.clone(), Limit: v.pageSize})
	return v.finish(gen, "", page, err)
}

// LoadMore 加载下一页；没有更多或正在加载时什么都不做
func (v *View) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	if v.closed || !v.hasMore || v.loading {
		v.mu.Unlock()
		return nil
	}
	gen := v.gen
	cursor := v.cursor
	filter := v.filter.clone()
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetcher.FetchPage(ctx, PageRequest{Filter: filter, Cursor: cursor, Limit: v.pageSize})
	return v.finish(gen, cursor, page, err)
}

// Search 防抖后以新的搜索词重新加载（清空搜索词同样触发）
func (v *View) Search(ctx context.Context, term string) {
	v.debouncer.Trigger(func() {
		v.mu.Lock()
		filter := v.filter.clone()
		v.mu.Unlock()

		filter.Search = term
		if err := v.LoadInitial(ctx, filter); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("[View %s] ⚠️ 搜索 %q 加载失败: %v", v.name, term, err)
		}
	})
}

// SetParam 修改结构化过滤参数（立即生效，不防抖）
func (v *View) SetParam(ctx context.Context, key, value string) error {
	v.mu.Lock()
	filter := v.filter.clone()
	v.mu.Unlock()

	if filter.Params == nil {
		filter.Params = make(map[string]string)
	}
	if value == "" {
		delete(filter.Params, key)
	} else {
		filter.Params[key] = value
	}
	return v.LoadInitial(ctx, filter)
}

// Close 卸载视图：取消待执行的搜索，丢弃所有在途响应
func (v *View) Close() {
	v.debouncer.Stop()
	v.mu.Lock()
	v.closed = true
	v.gen++
	v.loading = false
	v.mu.Unlock()
}

func (v *View) finish(gen uint64, cursor string, page Page, err error) error {
	v.mu.Lock()
	if gen != v.gen {
		// 过期响应：静默丢弃
		v.mu.Unlock()
		log.Printf("[View %s] ⏭️ 丢弃过期响应 (gen %d)", v.name, gen)
		return nil
	}
	v.loading = false

	if err != nil {
		v.mu.Unlock()
		ferr := &FetchError{Collection: v.name, Cursor: cursor, Err: err}
		if v.notifier != nil {
			v.notifier.Notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgFetchFailed, Args: []any{v.name, err.Error()}, Err: ferr})
		}
		return ferr
	}

	added := make([]Item, 0, len(page.Items))
	for _, it := range page.Items {
		if _, dup := v.index[it.ID]; dup {
			continue
		}
		it.Fields = optimistic.CloneFields(it.Fields)
		v.index[it.ID] = len(v.items)
		v.items = append(v.items, it)
		added = append(added, cloneItem(it))
	}
	if n := len(page.Items); n > 0 {
		v.cursor = page.NextCursor
		if v.cursor == "" {
			v.cursor = page.Items[n-1].ID
		}
	}
	v.hasMore = len(page.Items) == v.pageSize
	onPage := v.onPage
	v.mu.Unlock()

	if onPage != nil && len(added) > 0 {
		onPage(added)
	}
	return nil
}

// ================= optimistic.Replica =================

// ApplyField 同步更新列表中对应行
func (v *View) ApplyField(targetID, path string, value any, present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx, ok := v.index[targetID]
	if !ok {
		return
	}
	if present {
		_ = optimistic.SetPath(v.items[idx].Fields, path, value)
	} else {
		optimistic.DeletePath(v.items[idx].Fields, path)
	}
}

// ================= 读取 =================

// Items 返回当前列表的副本
func (v *View) Items() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Item, len(v.items))
	for i, it := range v.items {
		out[i] = cloneItem(it)
	}
	return out
}

// Item 按 ID 读取一行
func (v *View) Item(id string) (Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx, ok := v.index[id]
	if !ok {
		return Item{}, false
	}
	return cloneItem(v.items[idx]), true
}

func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

func (v *View) Cursor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

func (v *View) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter.clone()
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func cloneItem(it Item) Item {
	it.Fields = optimistic.CloneFields(it.Fields)
	return it
}
