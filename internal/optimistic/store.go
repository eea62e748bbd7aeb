package optimistic

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Replica 同一逻辑记录的反规范化副本（列表行、打开中的详情面板……）
// ApplyField 在 Store 锁内同步调用，实现方不得回调 Store
// present 为 false 表示字段被回滚为"不存在"
type Replica interface {
	ApplyField(targetID, path string, value any, present bool)
}

type record struct {
	fields     Fields
	serverTime time.Time // 最近一次服务端快照的时间戳
}

type pendingKey struct {
	targetID string
	path     string
}

// chain 同一 (targetID, fieldPath) 上未结算的意图队列
type chain struct {
	base         any // 回滚基线：第一个未结算意图之前的值，只被确认结果推进
	baseOK       bool
	pending      int
	tail         chan struct{} // 最后一个意图完成时关闭，用于串行化 persist
	remoteSeen   bool
	remoteCommit time.Time
}

// Store 客户端本地状态：记录 + 反规范化副本 + 未结算意图
// 所有本地写入都在一把锁里同步完成，保证同一次渲染中各处副本一致
type Store struct {
	mu       sync.RWMutex
	records  map[string]*record
	replicas []Replica
	pending  map[pendingKey]*chain
}

// NewStore 创建空 Store
func NewStore() *Store {
	return &Store{
		records: make(map[string]*record),
		pending: make(map[pendingKey]*chain),
	}
}

// Attach 注册副本，返回注销函数（视图卸载时调用）
func (s *Store) Attach(r Replica) (detach func()) {
	s.mu.Lock()
	s.replicas = append(s.replicas, r)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.replicas {
			if cur == r {
				s.replicas = append(s.replicas[:i], s.replicas[i+1:]...)
				return
			}
		}
	}
}

// Put 放入首次拉取到的记录，等价于一次服务端快照
func (s *Store) Put(id string, fields Fields, serverTime time.Time) {
	s.ApplyRemote(id, fields, serverTime)
}

// Get 返回记录的深拷贝
func (s *Store) Get(id string) (Fields, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return CloneFields(rec.fields), true
}

// Field 读取单个字段（深拷贝）
func (s *Store) Field(id, path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	v, ok := GetPath(rec.fields, path)
	return Clone(v), ok
}

// Remove 删除记录（取消订阅或远端删除）
// 未结算的意图仍会完成，但不再写回任何状态
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// ApplyRemote 应用服务端快照，按服务端时间戳后写者胜
// 不比已知快照新的投递直接丢弃（时间戳相同说明没有新内容）；新快照覆盖乐观值，并重置相关字段的回滚基线
// serverTime 为零值时不参与比较（按版本号排序的数据）
func (s *Store) ApplyRemote(id string, fields Fields, serverTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		rec = &record{fields: Fields{}}
		s.records[id] = rec
	} else if !serverTime.IsZero() && !serverTime.After(rec.serverTime) {
		log.Printf("[Store] ⏭️ 丢弃过期快照 %s (%s <= %s)", id, serverTime.Format(time.RFC3339Nano), rec.serverTime.Format(time.RFC3339Nano))
		return false
	}

	if serverTime.After(rec.serverTime) {
		rec.serverTime = serverTime
	}

	for key, value := range fields {
		value = Clone(value)
		rec.fields[key] = value
		s.fanout(id, key, value, true)
	}

	// 重置未结算意图的回滚基线
	for k, c := range s.pending {
		if k.targetID != id {
			continue
		}
		top := k.path
		if i := strings.IndexByte(top, '.'); i >= 0 {
			top = top[:i]
		}
		if _, touched := fields[top]; !touched {
			continue
		}
		c.base, c.baseOK = GetPath(rec.fields, k.path)
		c.base = Clone(c.base)
		c.remoteSeen = true
		c.remoteCommit = rec.serverTime
	}
	return true
}

// ApplyRemoteField 应用服务端推送的单字段变更（例如 field-changed 消息）
// 只重置路径有重叠的未结算意图的基线；本地不存在该记录时忽略
func (s *Store) ApplyRemoteField(id, path string, value any, serverTime time.Time) bool {
	if _, err := SplitPath(path); err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}
	if !serverTime.IsZero() && !serverTime.After(rec.serverTime) {
		log.Printf("[Store] ⏭️ 丢弃过期字段 %s.%s", id, path)
		return false
	}
	if serverTime.After(rec.serverTime) {
		rec.serverTime = serverTime
	}

	value = Clone(value)
	_ = SetPath(rec.fields, path, value)
	s.fanout(id, path, value, true)

	for k, c := range s.pending {
		if k.targetID != id || !pathsOverlap(k.path, path) {
			continue
		}
		c.base, c.baseOK = GetPath(rec.fields, k.path)
		c.base = Clone(c.base)
		c.remoteSeen = true
		c.remoteCommit = rec.serverTime
	}
	return true
}

// pathsOverlap a 与 b 相同，或一方是另一方的祖先
func pathsOverlap(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// ================= 供 Mutator 使用的内部方法 =================

// begin 捕获快照并同步写入本地（记录 + 所有副本）
// 返回前一个同键意图的完成信号，persist 需要等它结束
func (s *Store) begin(intent *Intent) (prev <-chan struct{}, err error) {
	if _, err := SplitPath(intent.FieldPath); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[intent.TargetID]
	if !ok {
		return nil, ErrUnknownTarget
	}

	current, had := GetPath(rec.fields, intent.FieldPath)
	intent.Previous = Clone(current)
	intent.HadValue = had

	key := pendingKey{targetID: intent.TargetID, path: intent.FieldPath}
	c, exists := s.pending[key]
	if !exists {
		c = &chain{base: Clone(current), baseOK: had}
		s.pending[key] = c
	}
	prev = c.tail
	c.tail = intent.done
	c.pending++

	_ = SetPath(rec.fields, intent.FieldPath, Clone(intent.Next))
	s.fanout(intent.TargetID, intent.FieldPath, intent.Next, true)
	return prev, nil
}

// settle 结算一个意图，返回该字段结算后的本地值
// 同键最后一个意图结算时，本地值收敛到基线（确认值或回滚值）
func (s *Store) settle(intent *Intent, confirmed *Confirmed, persistErr error) (value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey{targetID: intent.TargetID, path: intent.FieldPath}
	c, ok := s.pending[key]
	if !ok {
		return nil
	}
	c.pending--

	if persistErr == nil {
		switch {
		case confirmed != nil && (confirmed.ServerTime.IsZero() || !confirmed.ServerTime.Before(c.remoteCommit)):
			c.base, c.baseOK = Clone(confirmed.Value), true
		case confirmed == nil && !c.remoteSeen:
			c.base, c.baseOK = Clone(intent.Next), true
		}
	}

	rec, live := s.records[intent.TargetID]

	if c.pending > 0 {
		// 还有更晚的意图在途，不动界面上的值
		if live {
			v, _ := GetPath(rec.fields, intent.FieldPath)
			return Clone(v)
		}
		return nil
	}

	delete(s.pending, key)
	if !live {
		return nil
	}

	if confirmed != nil && persistErr == nil && !confirmed.ServerTime.IsZero() && confirmed.ServerTime.After(rec.serverTime) {
		rec.serverTime = confirmed.ServerTime
	}

	if c.baseOK {
		_ = SetPath(rec.fields, intent.FieldPath, Clone(c.base))
		s.fanout(intent.TargetID, intent.FieldPath, c.base, true)
	} else {
		DeletePath(rec.fields, intent.FieldPath)
		s.fanout(intent.TargetID, intent.FieldPath, nil, false)
	}
	return Clone(c.base)
}

// fanout 同步更新所有副本，调用方持有 s.mu
func (s *Store) fanout(id, path string, value any, present bool) {
	for _, r := range s.replicas {
		r.ApplyField(id, path, Clone(value), present)
	}
}
