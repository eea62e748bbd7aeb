package client

import (
	"encoding/json"
	"time"

	"board-go-server/internal/collection"
	"board-go-server/internal/optimistic"
)

// Board 看板（列表行不带 Content）
type Board struct {
	BoardID     string          `json:"boardId"`
	Title       string          `json:"title"`
	Visibility  string          `json:"visibility"`
	Permissions map[string]any  `json:"permissions"`
	Content     json.RawMessage `json:"content,omitempty"`
	Version     int64           `json:"version"`
	OwnerID     string          `json:"ownerId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Fields 转成 Store 中的记录
func (b Board) Fields() optimistic.Fields {
	return optimistic.Fields{
		"title":       b.Title,
		"visibility":  b.Visibility,
		"permissions": optimistic.Clone(b.Permissions),
		"ownerId":     b.OwnerID,
	}
}

// User 用户
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Role      string    `json:"role"`
	Suspended bool      `json:"suspended"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fields 转成 Store 中的记录
func (u User) Fields() optimistic.Fields {
	return optimistic.Fields{
		"email":     u.Email,
		"name":      u.Name,
		"avatarUrl": u.AvatarURL,
		"role":      u.Role,
		"suspended": u.Suspended,
	}
}

// Notification 站内通知
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type listResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor"`
	HasMore    bool   `json:"hasMore"`
}

type fieldUpdate struct {
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f fieldUpdate) confirmed() *optimistic.Confirmed {
	return &optimistic.Confirmed{Value: f.Value, ServerTime: f.UpdatedAt}
}

func boardItem(b Board) collection.Item {
	return collection.Item{ID: b.BoardID, Fields: b.Fields(), UpdatedAt: b.UpdatedAt}
}

func userItem(u User) collection.Item {
	return collection.Item{ID: u.ID, Fields: u.Fields(), UpdatedAt: u.UpdatedAt}
}
