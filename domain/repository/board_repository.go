package repository

import (
	"time"

	"board-go-server/domain/entity"
)

// BoardRepository 看板数据仓库接口
type BoardRepository interface {
	// GetByBoardID 根据业务 ID 获取看板，不存在时返回 (nil, nil)
	GetByBoardID(boardID string) (*entity.Board, error)

	// Create 创建新看板
	// 注意：禁止使用 GORM Save，它会覆盖 content 和 version
	Create(board *entity.Board) error

	// UpdateContent 更新便利贴文档（协同编辑的热路径）
	// oldVersion: 上次持久化的版本号，用于乐观锁检查
	// newVersion: 要写入的新版本号（允许跳跃）
	// 如果版本不匹配，返回 ErrOptimisticLock
	UpdateContent(boardID string, content []byte, oldVersion, newVersion int64) error

	// UpdateFields 部分字段更新（列名 -> 值），返回服务端更新时间
	UpdateFields(boardID string, updates map[string]any) (time.Time, error)

	// List 游标分页查询，按创建时间倒序
	List(query BoardQuery) (PageResult[entity.Board], error)

	// Delete 删除看板
	// 注意：删除前必须先通过 Hub.CloseRoom 关闭内存中的协同房间
	Delete(boardID string) error
}
