package entity

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Visibility 看板可见性
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid 判断可见性取值是否合法
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Note 便利贴（存放在 Board.Content 的 notes 字段中）
type Note struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Color    string `json:"color,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	AuthorID string `json:"authorId"`
}

// Board 数据库模型
// Content 是协同编辑的便利贴文档，Permissions 是可选字段集合（读取时补默认值）
type Board struct {
	ID          uint           `gorm:"primaryKey"`
	BoardID     string         `gorm:"uniqueIndex;size:64"`
	Title       string         `gorm:"size:200"`
	Visibility  Visibility     `gorm:"size:16;default:public;index"`
	Permissions datatypes.JSON `json:"permissions"`
	Content     datatypes.JSON `json:"content"`
	Version     int64          `gorm:"default:0"`
	OwnerID     string         `gorm:"size:64;index"` // Clerk user_id
	CreatedAt   time.Time      `gorm:"index"`
	UpdatedAt   time.Time
}

// DefaultBoardContent 新建看板的空白文档
const DefaultBoardContent = `{"notes":{}}`

// ================= 权限配置（读取边界上的显式 Schema） =================

// BoardSettingsVersion 当前权限 Schema 版本
const BoardSettingsVersion = 2

// 谁可以执行某操作
const (
	AudienceEveryone = "everyone"
	AudienceMembers  = "members"
	AudienceOwner    = "owner"
)

// BoardSettings 权限配置
// 旧数据可能缺字段（v1 没有 whoCanAddNotes），统一在 DecodeBoardSettings 里补默认值
type BoardSettings struct {
	SchemaVersion  int    `json:"schemaVersion"`
	WhoCanChat     string `json:"whoCanChat"`
	WhoCanAddNotes string `json:"whoCanAddNotes"`
	WhoCanEdit     string `json:"whoCanEdit"`
}

// DefaultBoardSettings 默认权限
func DefaultBoardSettings() BoardSettings {
	return BoardSettings{
		SchemaVersion:  BoardSettingsVersion,
		WhoCanChat:     AudienceEveryone,
		WhoCanAddNotes: AudienceEveryone,
		WhoCanEdit:     AudienceOwner,
	}
}

// DecodeBoardSettings 解析权限 JSON，缺失字段使用默认值
func DecodeBoardSettings(raw []byte) (BoardSettings, error) {
	settings := DefaultBoardSettings()
	if len(raw) == 0 || string(raw) == "null" {
		return settings, nil
	}

	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return settings, err
	}

	if v, ok := stored["whoCanChat"].(string); ok && validAudience(v) {
		settings.WhoCanChat = v
	}
	if v, ok := stored["whoCanAddNotes"].(string); ok && validAudience(v) {
		settings.WhoCanAddNotes = v
	}
	if v, ok := stored["whoCanEdit"].(string); ok && validAudience(v) {
		settings.WhoCanEdit = v
	}
	return settings, nil
}

// Encode 序列化为 JSON（总是写入当前 Schema 版本）
func (s BoardSettings) Encode() datatypes.JSON {
	s.SchemaVersion = BoardSettingsVersion
	data, _ := json.Marshal(s)
	return datatypes.JSON(data)
}

// Allows 判断某用户是否满足 audience 要求
func (s BoardSettings) Allows(audience, userID, ownerID string, member bool) bool {
	switch audience {
	case AudienceEveryone:
		return true
	case AudienceMembers:
		return member || userID == ownerID
	default:
		return userID == ownerID
	}
}

// ValidAudience 供 usecase 校验写入值
func ValidAudience(v string) bool {
	return validAudience(v)
}

func validAudience(v string) bool {
	return v == AudienceEveryone || v == AudienceMembers || v == AudienceOwner
}
