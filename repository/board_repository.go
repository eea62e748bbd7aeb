package repository

import (
	"errors"
	"strings"
	"time"

	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	domainRepo "board-go-server/domain/repository"

	"gorm.io/gorm"
)

// boardRepository GORM 实现 BoardRepository 接口
// 同时实现 ws.BoardService 接口供 Hub 使用
type boardRepository struct {
	db *gorm.DB
}

// NewBoardRepository 构造函数
func NewBoardRepository(db *gorm.DB) domainRepo.BoardRepository {
	return &boardRepository{db: db}
}

// ================= domain.BoardRepository 接口实现 =================

// GetByBoardID 根据业务 ID 查询看板
func (r *boardRepository) GetByBoardID(boardID string) (*entity.Board, error) {
	var board entity.Board
	err := r.db.Where("board_id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // 返回 nil 表示不存在，调用方需处理
	}
	return &board, err
}

// Create 创建新看板（仅用于首次创建）
func (r *boardRepository) Create(board *entity.Board) error {
	err := r.db.Create(board).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domainErrors.ErrBoardAlreadyExists
	}
	return err
}

// UpdateContent 只更新 Content 字段（协同编辑热路径）
// ✅ 支持版本跳跃：内存中可能积累了多个版本，一次性刷盘
func (r *boardRepository) UpdateContent(boardID string, content []byte, oldVersion, newVersion int64) error {
	result := r.db.Model(&entity.Board{}).
		// ⚠️ 关键：WHERE 使用 oldVersion（上次持久化的版本）
		Where("board_id = ? AND version = ?", boardID, oldVersion).
		Updates(map[string]interface{}{
			"content": string(content),
			"version": newVersion,
		})

	if result.Error != nil {
		return result.Error
	}

	// RowsAffected == 0 说明版本冲突或看板不存在
	if result.RowsAffected == 0 {
		return domainErrors.ErrOptimisticLock
	}
	return nil
}

// UpdateFields 部分字段更新
// updates 的 key 是列名，由 usecase 负责白名单校验
func (r *boardRepository) UpdateFields(boardID string, updates map[string]any) (time.Time, error) {
	now := time.Now().UTC()
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["updated_at"] = now

	result := r.db.Model(&entity.Board{}).Where("board_id = ?", boardID).Updates(values)
	if result.Error != nil {
		return time.Time{}, result.Error
	}
	if result.RowsAffected == 0 {
		return time.Time{}, domainErrors.ErrBoardNotFound
	}
	return now, nil
}

// List 游标分页：created_at DESC, board_id DESC
func (r *boardRepository) List(query domainRepo.BoardQuery) (domainRepo.PageResult[entity.Board], error) {
	var result domainRepo.PageResult[entity.Board]
	limit := domainRepo.NormalizeLimit(query.Limit)

	cursor, err := decodeCursor(query.Cursor)
	if err != nil {
		return result, err
	}

	tx := r.db.Model(&entity.Board{})
	if query.Visibility != "" {
		tx = tx.Where("visibility = ?", query.Visibility)
	}
	if query.OwnerID != "" {
		tx = tx.Where("owner_id = ?", query.OwnerID)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		tx = tx.Where("LOWER(title) LIKE ?", escapeLike(strings.ToLower(search))+"%")
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.Key)
		if err != nil {
			return result, domainErrors.ErrInvalidCursor
		}
		tx = tx.Where("(created_at < ?) OR (created_at = ? AND board_id < ?)", createdAt, createdAt, cursor.ID)
	}

	// 多取一条判断是否还有下一页
	var boards []entity.Board
	if err := tx.Order("created_at DESC").Order("board_id DESC").Limit(limit + 1).Find(&boards).Error; err != nil {
		return result, err
	}

	if len(boards) > limit {
		boards = boards[:limit]
		result.HasMore = true
	}
	result.Items = boards
	if n := len(boards); n > 0 {
		last := boards[n-1]
		result.NextCursor = encodeCursor(last.CreatedAt.UTC().Format(time.RFC3339Nano), last.BoardID)
	}
	return result, nil
}

// Delete 删除看板
func (r *boardRepository) Delete(boardID string) error {
	result := r.db.Where("board_id = ?", boardID).Delete(&entity.Board{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrBoardNotFound
	}
	return nil
}

// ================= ws.BoardService 接口实现 =================
// 这些方法供 Hub 直接调用，无需额外适配器

// GetBoardState 获取便利贴文档（供 Hub 使用）
// 看板不存在时返回明确错误，阻止幽灵房间的创建
func (r *boardRepository) GetBoardState(boardID string) ([]byte, int64, error) {
	board, err := r.GetByBoardID(boardID)
	if err != nil {
		return nil, 0, err
	}
	if board == nil {
		return nil, 0, domainErrors.ErrBoardNotFound
	}
	return []byte(board.Content), board.Version, nil
}

// BoardExists 检查看板是否存在（供 Hub 前置检查使用）
func (r *boardRepository) BoardExists(boardID string) (bool, error) {
	board, err := r.GetByBoardID(boardID)
	if err != nil {
		return false, err
	}
	return board != nil, nil
}

// SaveBoardState 保存便利贴文档（供 Hub 使用，支持版本跳跃）
func (r *boardRepository) SaveBoardState(boardID string, state []byte, oldVersion, newVersion int64) error {
	return r.UpdateContent(boardID, state, oldVersion, newVersion)
}

// escapeLike 转义 LIKE 通配符
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
