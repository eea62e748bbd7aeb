package usecase

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	"board-go-server/domain/repository"
	"board-go-server/internal/ws"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserLookup 按 ID 查询用户，不存在返回 (nil, nil)
type UserLookup interface {
	Lookup(userID string) (*entity.User, error)
}

// BoardUseCase 看板业务逻辑层
// 注入 Hub 解决"数据双源"问题：
// - 有协同编辑时，内存是便利贴文档的 source of truth
// - 无协同编辑时，数据库是 source of truth
type BoardUseCase struct {
	repo          repository.BoardRepository
	users         UserLookup
	notifications *NotificationUseCase
	hub           *ws.Hub
}

// NewBoardUseCase 构造函数，依赖注入
func NewBoardUseCase(repo repository.BoardRepository, users UserLookup, notifications *NotificationUseCase, hub *ws.Hub) *BoardUseCase {
	return &BoardUseCase{repo: repo, users: users, notifications: notifications, hub: hub}
}

// GetBoard 获取看板
// 元数据读数据库，便利贴文档优先取 Hub 内存（协同编辑中的热数据）
func (uc *BoardUseCase) GetBoard(boardID string) (*entity.Board, error) {
	board, err := uc.repo.GetByBoardID(boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, domainErrors.ErrBoardNotFound
	}

	if room := uc.hub.GetRoom(boardID); room != nil {
		snapshot, version := room.GetSnapshot()
		board.Content = datatypes.JSON(snapshot)
		board.Version = version
	}
	return board, nil
}

// CreateBoard 创建新看板，boardID 为空时自动生成
func (uc *BoardUseCase) CreateBoard(boardID, title string, visibility entity.Visibility, ownerID string) (*entity.Board, error) {
	if boardID == "" {
		boardID = uuid.NewString()
	}
	if visibility == "" {
		visibility = entity.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: visibility %q", domainErrors.ErrInvalidFieldValue, visibility)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled board"
	}

	board := &entity.Board{
		BoardID:     boardID,
		Title:       title,
		Visibility:  visibility,
		Permissions: entity.DefaultBoardSettings().Encode(),
		Content:     datatypes.JSON(entity.DefaultBoardContent),
		Version:     1,
		OwnerID:     ownerID,
	}

	if err := uc.repo.Create(board); err != nil {
		return nil, err
	}
	log.Printf("[Board] ✨ %s 创建看板 %s", ownerID, boardID)
	return board, nil
}

// DeleteBoard 删除看板：先关闭房间并刷盘，再删数据库
func (uc *BoardUseCase) DeleteBoard(boardID, userID string) error {
	board, err := uc.repo.GetByBoardID(boardID)
	if err != nil {
		return err
	}
	if board == nil {
		return domainErrors.ErrBoardNotFound
	}
	if err := uc.authorizeOwner(board, userID); err != nil {
		return err
	}

	uc.hub.CloseRoom(boardID)
	return uc.repo.Delete(boardID)
}

// ListBoards 游标分页查询
func (uc *BoardUseCase) ListBoards(query repository.BoardQuery) (repository.PageResult[entity.Board], error) {
	if query.Visibility != "" && !entity.Visibility(query.Visibility).Valid() {
		return repository.PageResult[entity.Board]{}, fmt.Errorf("%w: visibility %q", domainErrors.ErrInvalidFieldValue, query.Visibility)
	}
	query.Limit = repository.NormalizeLimit(query.Limit)
	return uc.repo.List(query)
}

// UpdateBoardField 按点分路径修改看板字段，仅所有者或管理员可调用
// 支持 title、visibility、permissions.<key>
func (uc *BoardUseCase) UpdateBoardField(boardID, userID, path string, raw json.RawMessage) (*FieldUpdate, error) {
	board, err := uc.repo.GetByBoardID(boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, domainErrors.ErrBoardNotFound
	}
	if err := uc.authorizeOwner(board, userID); err != nil {
		return nil, err
	}

	var (
		value   any
		updates map[string]any
	)

	head, rest := splitField(path)
	switch {
	case path == "title":
		s, err := decodeString(raw)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" || len(s) > 200 {
			return nil, fmt.Errorf("%w: title length", domainErrors.ErrInvalidFieldValue)
		}
		value = s
		updates = map[string]any{"title": s}

	case path == "visibility":
		s, err := decodeString(raw)
		if err != nil {
			return nil, err
		}
		if !entity.Visibility(s).Valid() {
			return nil, fmt.Errorf("%w: visibility %q", domainErrors.ErrInvalidFieldValue, s)
		}
		value = s
		updates = map[string]any{"visibility": s}

	case head == "permissions" && rest != "":
		s, err := decodeString(raw)
		if err != nil {
			return nil, err
		}
		permissions, err := patchPermissions(board.Permissions, rest, s)
		if err != nil {
			return nil, err
		}
		value = s
		updates = map[string]any{"permissions": permissions}

	default:
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrInvalidFieldPath, path)
	}

	updatedAt, err := uc.repo.UpdateFields(boardID, updates)
	if err != nil {
		return nil, err
	}
	log.Printf("[Board] ✏️ %s 修改了看板 %s 的 %s", userID, boardID, path)

	// 推送失败不影响本次写入，客户端以 HTTP 响应为准
	_ = uc.hub.PublishFieldChange(boardID, path, value, updatedAt)

	if uc.notifications != nil && board.OwnerID != userID {
		_ = uc.notifications.Notify(board.OwnerID, "Board updated",
			fmt.Sprintf("%s changed %s on %q", userID, path, board.Title), "board:"+boardID)
	}

	return &FieldUpdate{Path: path, Value: value, UpdatedAt: updatedAt}, nil
}

// CanAddNotes 用户能否在看板上添加便利贴（WebSocket 接入时计算）
func (uc *BoardUseCase) CanAddNotes(boardID, userID string) (bool, error) {
	board, err := uc.repo.GetByBoardID(boardID)
	if err != nil {
		return false, err
	}
	if board == nil {
		return false, domainErrors.ErrBoardNotFound
	}

	user, err := uc.users.Lookup(userID)
	if err != nil {
		return false, err
	}
	if user != nil && user.Suspended {
		return false, nil
	}
	if user.IsAdmin() {
		return true, nil
	}

	settings, err := entity.DecodeBoardSettings(board.Permissions)
	if err != nil {
		log.Printf("[Board] ⚠️ 看板 %s 权限配置损坏，使用默认值: %v", boardID, err)
	}
	return settings.Allows(settings.WhoCanAddNotes, userID, board.OwnerID, user != nil), nil
}

// authorizeOwner 所有者或管理员
func (uc *BoardUseCase) authorizeOwner(board *entity.Board, userID string) error {
	if userID == "" {
		return domainErrors.ErrUnauthorized
	}
	user, err := uc.users.Lookup(userID)
	if err != nil {
		return err
	}
	if user != nil && user.Suspended {
		return domainErrors.ErrPermissionDenied
	}
	if board.OwnerID == userID || user.IsAdmin() {
		return nil
	}
	return domainErrors.ErrPermissionDenied
}

// patchPermissions 用 JSON Patch 修改权限配置中的单个键，并升级到当前 Schema 版本
func patchPermissions(current datatypes.JSON, key, audience string) (datatypes.JSON, error) {
	switch key {
	case "whoCanChat", "whoCanAddNotes", "whoCanEdit":
	default:
		return nil, fmt.Errorf("%w: permissions.%s", domainErrors.ErrInvalidFieldPath, key)
	}
	if !entity.ValidAudience(audience) {
		return nil, fmt.Errorf("%w: audience %q", domainErrors.ErrInvalidFieldValue, audience)
	}

	doc := []byte(current)
	if len(doc) == 0 || string(doc) == "null" {
		doc = []byte(`{}`)
	}

	ops, _ := json.Marshal([]map[string]any{
		{"op": "add", "path": "/" + key, "value": audience},
		{"op": "add", "path": "/schemaVersion", "value": entity.BoardSettingsVersion},
	})
	patch, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, err
	}
	modified, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidFieldValue, err)
	}

	// 读回一次，确保写入后仍能按当前 Schema 解析
	if _, err := entity.DecodeBoardSettings(modified); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidFieldValue, err)
	}
	return datatypes.JSON(modified), nil
}
