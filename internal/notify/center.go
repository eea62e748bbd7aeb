package notify

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultDedupWindow 相同 Tag 的提示在此窗口内只展示一次
const DefaultDedupWindow = 5 * time.Second

// Center 提示中心：本地化 + 去重 + 活跃会话屏蔽
type Center struct {
	mu      sync.RWMutex
	lang    Language
	active  string
	catalog Catalog
	sink    Sink
	seen    *cache.Cache
}

// CenterOption 配置项
type CenterOption func(*Center)

// WithCatalog 替换文案表
func WithCatalog(c Catalog) CenterOption {
	return func(ct *Center) { ct.catalog = c }
}

// WithDedupWindow 调整去重窗口
func WithDedupWindow(d time.Duration) CenterOption {
	return func(ct *Center) { ct.seen = cache.New(d, 2*d) }
}

// NewCenter 创建提示中心
func NewCenter(sink Sink, lang Language, opts ...CenterOption) *Center {
	if sink == nil {
		sink = LogSink{}
	}
	c := &Center{
		lang:    lang,
		catalog: DefaultCatalog,
		sink:    sink,
		seen:    cache.New(DefaultDedupWindow, 2*DefaultDedupWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLanguage 切换界面语言，之后的提示按新语言渲染
func (c *Center) SetLanguage(lang Language) {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

// Language 当前语言
func (c *Center) Language() Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lang
}

// SetActive 标记当前正在查看的会话，同 Tag 的通知不再弹出
func (c *Center) SetActive(tag string) {
	c.mu.Lock()
	c.active = tag
	c.mu.Unlock()
}

// Notify 本地化后投递
func (c *Center) Notify(n Notice) {
	c.mu.RLock()
	lang, active := c.lang, c.active
	c.mu.RUnlock()

	if n.Tag != "" {
		if n.Tag == active {
			return
		}
		// go-cache 的 Add 在键已存在时返回错误，正好用作去重
		if err := c.seen.Add(n.Tag, struct{}{}, cache.DefaultExpiration); err != nil {
			return
		}
	}

	if n.Key != "" {
		n.Body = c.catalog.Format(lang, n.Key, n.Args...)
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	c.sink.Deliver(n)
}

// Push 系统通知（应用不在前台时展示），即发即忘
func (c *Center) Push(title, body, tag string) {
	c.Notify(Notice{Kind: KindInfo, Title: title, Body: body, Tag: tag})
}

// Reset 清空去重记录（退出登录时调用）
func (c *Center) Reset() {
	c.seen.Flush()
	c.SetActive("")
}
