package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"board-go-server/internal/collection"
	"board-go-server/internal/optimistic"
)

// ================= 看板 =================

// GetBoard 看板详情（含便利贴文档）
func (c *Client) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	var b Board
	if err := c.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(boardID), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBoard 创建看板，boardID 可为空
func (c *Client) CreateBoard(ctx context.Context, boardID, title, visibility string) (*Board, error) {
	var b Board
	body := map[string]string{"boardId": boardID, "title": title, "visibility": visibility}
	if err := c.do(ctx, http.MethodPost, "/api/boards", nil, body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBoard 删除看板
func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	return c.do(ctx, http.MethodDelete, "/api/boards/"+url.PathEscape(boardID), nil, nil, nil)
}

// PatchBoardField 按点分路径修改看板字段，返回服务端确认的值和时间
func (c *Client) PatchBoardField(ctx context.Context, boardID, path string, value any) (*optimistic.Confirmed, error) {
	var out fieldUpdate
	body := map[string]any{"path": path, "value": value}
	if err := c.do(ctx, http.MethodPatch, "/api/boards/"+url.PathEscape(boardID)+"/fields", nil, body, &out); err != nil {
		return nil, err
	}
	return out.confirmed(), nil
}

// BoardPersist 作为乐观更新的远端写入
func (c *Client) BoardPersist(boardID, path string, value any) optimistic.PersistFunc {
	return func(ctx context.Context) (*optimistic.Confirmed, error) {
		return c.PatchBoardField(ctx, boardID, path, value)
	}
}

// BoardsFetcher 看板列表的分页数据源
// Filter.Params 支持 visibility、mine
func (c *Client) BoardsFetcher() collection.Fetcher {
	return collection.FetcherFunc(func(ctx context.Context, req collection.PageRequest) (collection.Page, error) {
		q := pageQuery(req)
		for _, key := range []string{"visibility", "mine"} {
			if v := req.Filter.Params[key]; v != "" {
				q.Set(key, v)
			}
		}

		var out listResponse[Board]
		if err := c.do(ctx, http.MethodGet, "/api/boards", q, nil, &out); err != nil {
			return collection.Page{}, err
		}
		page := collection.Page{NextCursor: out.NextCursor}
		for _, b := range out.Items {
			page.Items = append(page.Items, boardItem(b))
		}
		return page, nil
	})
}

// ================= 用户 =================

// PatchUserField 管理员修改用户字段
func (c *Client) PatchUserField(ctx context.Context, userID, path string, value any) (*optimistic.Confirmed, error) {
	var out fieldUpdate
	body := map[string]any{"path": path, "value": value}
	if err := c.do(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(userID)+"/fields", nil, body, &out); err != nil {
		return nil, err
	}
	return out.confirmed(), nil
}

// UserPersist 作为乐观更新的远端写入
func (c *Client) UserPersist(userID, path string, value any) optimistic.PersistFunc {
	return func(ctx context.Context) (*optimistic.Confirmed, error) {
		return c.PatchUserField(ctx, userID, path, value)
	}
}

// UsersFetcher 用户列表的分页数据源，Filter.Params 支持 role
func (c *Client) UsersFetcher() collection.Fetcher {
	return collection.FetcherFunc(func(ctx context.Context, req collection.PageRequest) (collection.Page, error) {
		q := pageQuery(req)
		if role := req.Filter.Params["role"]; role != "" {
			q.Set("role", role)
		}

		var out listResponse[User]
		if err := c.do(ctx, http.MethodGet, "/api/users", q, nil, &out); err != nil {
			return collection.Page{}, err
		}
		page := collection.Page{NextCursor: out.NextCursor}
		for _, u := range out.Items {
			page.Items = append(page.Items, userItem(u))
		}
		return page, nil
	})
}

// ================= 通知 =================

// Notifications 当前用户的通知和未读数
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, int64, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var out struct {
		Items  []Notification `json:"items"`
		Unread int64          `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications", q, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Items, out.Unread, nil
}

// MarkRead 标记通知已读
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

func pageQuery(req collection.PageRequest) url.Values {
	q := url.Values{}
	if req.Filter.Search != "" {
		q.Set("search", req.Filter.Search)
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	return q
}
