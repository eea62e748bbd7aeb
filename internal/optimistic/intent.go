package optimistic

import (
	"context"
	"sync"
	"time"
)

// Status 变更意图状态
type Status int32

const (
	StatusApplied   Status = iota // 已在本地生效，等待远端结果
	StatusConfirmed               // 远端写入成功
	StatusReverted                // 远端写入失败，已回滚
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusConfirmed:
		return "confirmed"
	case StatusReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Intent 一次乐观变更
type Intent struct {
	ID        string
	TargetID  string
	FieldPath string
	Previous  any  // 变更前快照
	HadValue  bool // 变更前字段是否存在
	Next      any
	IssuedAt  time.Time

	mu     sync.Mutex
	status Status
	err    error
	value  any
	done   chan struct{}
}

func newIntent(id, targetID, path string, next any) *Intent {
	return &Intent{
		ID:        id,
		TargetID:  targetID,
		FieldPath: path,
		Next:      next,
		IssuedAt:  time.Now(),
		status:    StatusApplied,
		done:      make(chan struct{}),
	}
}

// Status 当前状态
func (i *Intent) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Err 失败原因（确认成功时为 nil）
func (i *Intent) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Value 结算后该字段在本地的值
func (i *Intent) Value() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value
}

// Done 结算完成时关闭
func (i *Intent) Done() <-chan struct{} {
	return i.done
}

// Wait 阻塞直到结算完成，返回远端错误
func (i *Intent) Wait(ctx context.Context) error {
	select {
	case <-i.done:
		return i.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Intent) finish(status Status, value any, err error) {
	i.mu.Lock()
	i.status = status
	i.value = value
	i.err = err
	i.mu.Unlock()
	close(i.done)
}
