package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== 测试辅助 ==========

// fakeFetcher 按 name 排序的内存集合，游标为最后一条记录 ID
type fakeFetcher struct {
	mu       sync.Mutex
	items    []Item
	requests []PageRequest
	// block 非空时，对应搜索词的请求阻塞到 channel 关闭
	block map[string]chan struct{}
	fail  error
}

func newUsers(n int) []Item {
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("u%03d", i)
		items[i] = Item{ID: id, Fields: optimistic.Fields{"name": fmt.Sprintf("user-%03d", i), "role": "student"}}
	}
	return items
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.block[req.Filter.Search]
	fail := f.fail
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		return Page{}, fail
	}

	var matched []Item
	for _, it := range f.items {
		name, _ := it.Fields["name"].(string)
		if req.Filter.Search != "" && !strings.HasPrefix(name, req.Filter.Search) {
			continue
		}
		if role := req.Filter.Params["role"]; role != "" && it.Fields["role"] != role {
			continue
		}
		matched = append(matched, it)
	}

	start := 0
	if req.Cursor != "" {
		for i, it := range matched {
			if it.ID == req.Cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + req.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return Page{Items: append([]Item(nil), matched[start:end]...)}, nil
}

func (f *fakeFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeFetcher) lastRequest() PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// ========== 分页 ==========

func TestView_LoadMore_MonotonicWithoutDuplicates(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(45)}
	view := NewView("users", fetcher, WithPageSize(20))

	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))
	assert.Len(t, view.Items(), 20)
	assert.True(t, view.HasMore())

	prev := 20
	for view.HasMore() {
		require.NoError(t, view.LoadMore(context.Background()))
		n := len(view.Items())
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}

	items := view.Items()
	require.Len(t, items, 45)
	seen := make(map[string]bool)
	for i, it := range items {
		assert.False(t, seen[it.ID], "duplicate %s", it.ID)
		seen[it.ID] = true
		assert.Equal(t, fmt.Sprintf("u%03d", i), it.ID)
	}
}

func TestView_TwoFullPagesGiveFortyOrderedItems(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(40)}
	view := NewView("users", fetcher, WithPageSize(20))

	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))
	require.NoError(t, view.LoadMore(context.Background()))

	items := view.Items()
	require.Len(t, items, 40)
	assert.Equal(t, "u000", items[0].ID)
	assert.Equal(t, "u039", items[39].ID)
	assert.Equal(t, "u039", view.Cursor())

	// 页满时仍认为可能有下一页，再取一次空页后结束
	assert.True(t, view.HasMore())
	require.NoError(t, view.LoadMore(context.Background()))
	assert.False(t, view.HasMore())
	assert.Len(t, view.Items(), 40)

	// 没有更多时 LoadMore 不再发请求
	count := fetcher.requestCount()
	require.NoError(t, view.LoadMore(context.Background()))
	assert.Equal(t, count, fetcher.requestCount())
}

// ========== 过滤重置 ==========

func TestView_FilterChangeReplacesItems(t *testing.T) {
	items := newUsers(30)
	items[3].Fields["role"] = "teacher"
	items[7].Fields["role"] = "teacher"
	fetcher := &fakeFetcher{items: items}
	view := NewView("users", fetcher, WithPageSize(10))

	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))
	require.NoError(t, view.LoadMore(context.Background()))
	assert.Len(t, view.Items(), 20)

	require.NoError(t, view.SetParam(context.Background(), "role", "teacher"))
	assert.Equal(t, []string{"u003", "u007"}, ids(view.Items()))
	assert.False(t, view.HasMore())

	// 清空条件同样是完整替换
	require.NoError(t, view.SetParam(context.Background(), "role", ""))
	assert.Len(t, view.Items(), 10)
	assert.Equal(t, "u000", view.Items()[0].ID)
}

// ========== 过期响应 ==========

func TestView_StaleInitialResponseIgnored(t *testing.T) {
	gateA := make(chan struct{})
	fetcher := &fakeFetcher{
		items: newUsers(30),
		block: map[string]chan struct{}{"user-00": gateA},
	}
	view := NewView("users", fetcher, WithPageSize(20))

	done := make(chan error, 1)
	go func() {
		done <- view.LoadInitial(context.Background(), Filter{Search: "user-00"})
	}()

	// 等 A 的请求发出后再切到 B
	assert.Eventually(t, func() bool { return fetcher.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, view.LoadInitial(context.Background(), Filter{Search: "user-02"}))

	close(gateA)
	require.NoError(t, <-done)

	items := view.Items()
	require.Len(t, items, 10)
	for _, it := range items {
		assert.True(t, strings.HasPrefix(it.Fields["name"].(string), "user-02"))
	}
	assert.Equal(t, "user-02", view.Filter().Search)
}

func TestView_LateLoadMoreAfterFilterSwitchIgnored(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(45)}
	view := NewView("users", fetcher, WithPageSize(20))
	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))

	gate := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.block = map[string]chan struct{}{"": gate}
	fetcher.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- view.LoadMore(context.Background()) }()
	assert.Eventually(t, func() bool { return fetcher.requestCount() == 2 }, time.Second, 5*time.Millisecond)

	// 加载中再次 LoadMore 是空操作
	require.NoError(t, view.LoadMore(context.Background()))
	assert.Equal(t, 2, fetcher.requestCount())

	require.NoError(t, view.LoadInitial(context.Background(), Filter{Search: "user-01"}))
	close(gate)
	require.NoError(t, <-done)

	assert.Len(t, view.Items(), 10)
	for _, it := range view.Items() {
		assert.True(t, strings.HasPrefix(it.Fields["name"].(string), "user-01"))
	}
}

// ========== 失败 ==========

func TestView_FetchFailureKeepsLoadedItems(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(45)}
	var notices []notify.Notice
	center := notify.NewCenter(notify.SinkFunc(func(n notify.Notice) { notices = append(notices, n) }), notify.LangChinese)
	view := NewView("users", fetcher, WithPageSize(20), WithNotifier(center))

	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))
	cursor := view.Cursor()

	fetcher.mu.Lock()
	fetcher.fail = errors.New("unavailable")
	fetcher.mu.Unlock()

	err := view.LoadMore(context.Background())
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, cursor, ferr.Cursor)

	assert.Len(t, view.Items(), 20)
	assert.Equal(t, cursor, view.Cursor())
	assert.True(t, view.HasMore())
	assert.False(t, view.Loading())

	require.Len(t, notices, 1)
	assert.Equal(t, "加载users失败：unavailable", notices[0].Body)

	// 允许重试
	fetcher.mu.Lock()
	fetcher.fail = nil
	fetcher.mu.Unlock()
	require.NoError(t, view.LoadMore(context.Background()))
	assert.Len(t, view.Items(), 40)
}

// ========== 防抖 ==========

func TestView_SearchDebounceIssuesSingleFetch(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(100)}
	view := NewView("users", fetcher, WithPageSize(20), WithDebounce(60*time.Millisecond))

	for _, term := range []string{"u", "us", "use", "user", "user-0"} {
		view.Search(context.Background(), term)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fetcher.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fetcher.requestCount())
	assert.Equal(t, "user-0", fetcher.lastRequest().Filter.Search)
	assert.Eventually(t, func() bool { return len(view.Items()) == 20 }, time.Second, 5*time.Millisecond)
}

func TestView_CloseCancelsPendingSearch(t *testing.T) {
	fetcher := &fakeFetcher{items: newUsers(10)}
	view := NewView("users", fetcher, WithDebounce(20*time.Millisecond))

	view.Search(context.Background(), "user")
	view.Close()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, fetcher.requestCount())
	assert.ErrorIs(t, view.LoadInitial(context.Background(), Filter{}), ErrClosed)
}

// ========== 与乐观更新联动 ==========

func TestView_ReplicaFollowsMutation(t *testing.T) {
	store := optimistic.NewStore()
	fetcher := &fakeFetcher{items: newUsers(30)}
	view := NewView("users", fetcher, WithPageSize(30), WithOnPage(func(items []Item) {
		for _, it := range items {
			store.Put(it.ID, it.Fields, it.UpdatedAt)
		}
	}))
	detail := &DetailView{}
	store.Attach(view)
	store.Attach(detail)

	require.NoError(t, view.LoadInitial(context.Background(), Filter{}))
	row, _ := view.Item("u012")
	detail.Open("u012", row.Fields)

	mutator := optimistic.NewMutator(store)
	intent, err := mutator.Apply(context.Background(), optimistic.Mutation{
		TargetID:  "u012",
		FieldPath: "role",
		Next:      "teacher",
		Persist:   func(ctx context.Context) (*optimistic.Confirmed, error) { return nil, nil },
	})
	require.NoError(t, err)
	require.NoError(t, intent.Wait(context.Background()))

	teachers := 0
	for _, it := range view.Items() {
		if it.Fields["role"] == "teacher" {
			teachers++
			assert.Equal(t, "u012", it.ID)
		}
	}
	assert.Equal(t, 1, teachers)

	v, _ := detail.Field("role")
	assert.Equal(t, "teacher", v)
}
