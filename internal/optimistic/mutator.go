package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"board-go-server/internal/notify"

	"github.com/google/uuid"
)

// Confirmed 远端返回的权威值
// ServerTime 为零值时无条件采用
type Confirmed struct {
	Value      any
	ServerTime time.Time
}

// PersistFunc 远端写入；返回 nil Confirmed 表示沿用本地乐观值
type PersistFunc func(ctx context.Context) (*Confirmed, error)

// Mutation 一次乐观变更请求
type Mutation struct {
	TargetID  string
	FieldPath string
	Next      any
	Persist   PersistFunc
	// Check 前置权限检查，失败时不做任何本地修改
	Check func() error
	// Label 提示文案里展示的字段名称
	Label string
}

// Mutator 乐观更新：先同步改本地，再异步写远端，失败回滚到变更前快照
type Mutator struct {
	store    *Store
	notifier notify.Notifier
	timeout  time.Duration
	metrics  *Metrics
	wg       sync.WaitGroup
}

// Option 配置项
type Option func(*Mutator)

// WithNotifier 设置提示出口
func WithNotifier(n notify.Notifier) Option {
	return func(m *Mutator) { m.notifier = n }
}

// WithTimeout 远端写入超时，超时后强制回滚并提示；0 表示不限
func WithTimeout(d time.Duration) Option {
	return func(m *Mutator) { m.timeout = d }
}

// WithMetrics 记录 prometheus 指标
func WithMetrics(metrics *Metrics) Option {
	return func(m *Mutator) { m.metrics = metrics }
}

// DefaultTimeout 默认远端写入超时
const DefaultTimeout = 15 * time.Second

// NewMutator 创建 Mutator
func NewMutator(store *Store, opts ...Option) *Mutator {
	m := &Mutator{
		store:   store,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store 返回底层 Store
func (m *Mutator) Store() *Store {
	return m.store
}

// Apply 发起一次乐观变更
// 返回时本地记录和所有副本已经是 Next；远端结果通过 Intent 获取
// 远端失败不会以 error 形式返回，只会回滚并提示
func (m *Mutator) Apply(ctx context.Context, mut Mutation) (*Intent, error) {
	if mut.Persist == nil {
		return nil, ErrNoPersist
	}

	if mut.Check != nil {
		if err := mut.Check(); err != nil {
			m.metrics.observe(resultDenied)
			if IsPermissionDenied(err) {
				m.notify(notify.Notice{Kind: notify.KindPermission, Key: notify.MsgMutationDenied, Args: []any{m.label(mut)}, Err: err})
			} else {
				m.notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgMutationFailed, Args: []any{m.label(mut), err.Error()}, Err: err})
			}
			return nil, err
		}
	}

	intent := newIntent(uuid.NewString(), mut.TargetID, mut.FieldPath, Clone(mut.Next))
	prev, err := m.store.begin(intent)
	if err != nil {
		return nil, err
	}
	m.metrics.observe(resultApplied)

	// 请求级 ctx 可能在 Apply 返回后就被取消，persist 不应受其影响
	base := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		// 同一字段的写入严格按发出顺序执行
		if prev != nil {
			<-prev
		}

		start := time.Now()
		confirmed, err := m.persist(base, mut.Persist)
		m.metrics.observeLatency(time.Since(start))
		m.settle(intent, mut, confirmed, err)
	}()

	return intent, nil
}

// Wait 等待所有在途意图结算（测试与退出时使用）
func (m *Mutator) Wait() {
	m.wg.Wait()
}

// persist 带超时执行远端写入；persist 不响应 ctx 时也不会无限挂起
func (m *Mutator) persist(ctx context.Context, fn PersistFunc) (*Confirmed, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type result struct {
		confirmed *Confirmed
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := fn(ctx)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrPersistTimeout, r.err)
		}
		return r.confirmed, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrPersistTimeout, m.timeout)
	}
}

func (m *Mutator) settle(intent *Intent, mut Mutation, confirmed *Confirmed, err error) {
	value := m.store.settle(intent, confirmed, err)

	if err == nil {
		m.metrics.observe(resultConfirmed)
		intent.finish(StatusConfirmed, value, nil)
		return
	}

	perr := &PersistenceError{TargetID: intent.TargetID, FieldPath: intent.FieldPath, Err: err}
	m.metrics.observe(resultReverted)
	log.Printf("[Mutator] ↩️ %s.%s 回滚: %v", intent.TargetID, intent.FieldPath, err)

	switch {
	case IsPermissionDenied(err):
		m.notify(notify.Notice{Kind: notify.KindPermission, Key: notify.MsgMutationDenied, Args: []any{m.label(mut)}, Err: perr})
	case errors.Is(err, ErrPersistTimeout):
		m.notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgMutationTimeout, Args: []any{m.label(mut)}, Err: perr})
	default:
		m.notify(notify.Notice{Kind: notify.KindError, Key: notify.MsgMutationFailed, Args: []any{m.label(mut), err.Error()}, Err: perr})
	}

	intent.finish(StatusReverted, value, perr)
}

func (m *Mutator) notify(n notify.Notice) {
	if m.notifier != nil {
		m.notifier.Notify(n)
	}
}

func (m *Mutator) label(mut Mutation) string {
	if mut.Label != "" {
		return mut.Label
	}
	return mut.FieldPath
}
