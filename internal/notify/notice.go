package notify

import (
	"log"
	"time"
)

// Kind 提示样式
// permission 是"信息/权限"样式，不应渲染成错误
type Kind string

const (
	KindError      Kind = "error"
	KindPermission Kind = "permission"
	KindInfo       Kind = "info"
)

// Notice 一条面向用户的提示
// 设置了 Key 时由 Center 按当前语言渲染 Body
type Notice struct {
	Kind  Kind
	Key   MessageKey
	Args  []any
	Title string
	Body  string
	Tag   string // 去重键；与当前活跃会话相同时不展示
	Err   error
	At    time.Time
}

// Notifier 提示出口，调用方不关心投递结果
type Notifier interface {
	Notify(n Notice)
}

// Sink 最终投递目标（UI toast、系统通知、日志……）
type Sink interface {
	Deliver(n Notice)
}

// SinkFunc 函数适配器
type SinkFunc func(n Notice)

func (f SinkFunc) Deliver(n Notice) { f(n) }

// LogSink 输出到标准日志
type LogSink struct{}

func (LogSink) Deliver(n Notice) {
	switch n.Kind {
	case KindError:
		log.Printf("[Notify] ❌ %s %s", n.Title, n.Body)
	case KindPermission:
		log.Printf("[Notify] 🔒 %s %s", n.Title, n.Body)
	default:
		log.Printf("[Notify] ℹ️ %s %s", n.Title, n.Body)
	}
}

// ChannelSink 非阻塞地写入 channel，缓冲满时丢弃
type ChannelSink struct {
	C chan Notice
}

// NewChannelSink 创建带缓冲的 ChannelSink
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{C: make(chan Notice, size)}
}

func (s *ChannelSink) Deliver(n Notice) {
	select {
	case s.C <- n:
	default:
		log.Printf("[Notify] ⚠️ 提示队列已满，丢弃: %s", n.Body)
	}
}
