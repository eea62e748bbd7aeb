package collection

import (
	"sync"

	"board-go-server/internal/optimistic"
)

// DetailView 当前打开的单条记录（详情弹窗 / 侧边栏）
// 与列表行一样挂在 optimistic.Store 上，保证两处显示一致
type DetailView struct {
	mu     sync.Mutex
	id     string
	fields optimistic.Fields
}

// Open 打开某条记录
func (d *DetailView) Open(id string, fields optimistic.Fields) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = id
	d.fields = optimistic.CloneFields(fields)
}

// Close 关闭详情
func (d *DetailView) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = ""
	d.fields = nil
}

// ID 当前打开的记录 ID，未打开时为空
func (d *DetailView) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Field 读取字段
func (d *DetailView) Field(path string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fields == nil {
		return nil, false
	}
	v, ok := optimistic.GetPath(d.fields, path)
	return optimistic.Clone(v), ok
}

// ApplyField 实现 optimistic.Replica
func (d *DetailView) ApplyField(targetID, path string, value any, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id == "" || d.id != targetID {
		return
	}
	if present {
		_ = optimistic.SetPath(d.fields, path, value)
	} else {
		optimistic.DeletePath(d.fields, path)
	}
}
