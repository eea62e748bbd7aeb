package repository

// PageResult 游标分页结果
// NextCursor 指向本页最后一条记录，HasMore 表示是否还有下一页
type PageResult[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// BoardQuery 看板列表查询条件
type BoardQuery struct {
	Search     string // 标题前缀搜索（不区分大小写）
	Visibility string // 为空表示不过滤
	OwnerID    string // 为空表示不过滤
	Cursor     string
	Limit      int
}

// UserQuery 用户列表查询条件
type UserQuery struct {
	Search string // 姓名前缀搜索（不区分大小写）
	Role   string
	Cursor string
	Limit  int
}

// MaxPageSize 单页上限
const MaxPageSize = 100

// DefaultPageSize 未指定 limit 时的分页大小，启动时可由 PAGE_SIZE 覆盖
var DefaultPageSize = 20

// NormalizeLimit 修正分页大小
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
