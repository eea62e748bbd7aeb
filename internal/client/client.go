package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "board-go-server/domain/errors"
)

// Client 看板服务的 REST 客户端
type Client struct {
	baseURL *url.URL
	token   func() string
	http    *http.Client
}

// Option 客户端可选配置
type Option func(*Client)

// WithHTTPClient 自定义 http.Client（测试时注入 httptest 的客户端）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource 每次请求时取最新 token（会话刷新后无需重建客户端）
func WithTokenSource(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.token = fn
		}
	}
}

// New 创建客户端，baseURL 形如 http://localhost:8080
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		baseURL: u,
		token:   func() string { return token },
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Unwrap 把状态码映射回领域错误，调用方可以用 errors.Is 判断
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusForbidden:
		return domainErrors.ErrPermissionDenied
	case http.StatusUnauthorized:
		return domainErrors.ErrUnauthorized
	case http.StatusConflict:
		return domainErrors.ErrOptimisticLock
	case http.StatusNotFound:
		return domainErrors.ErrBoardNotFound
	}
	return nil
}

// do 发送 JSON 请求并解析 JSON 响应，out 为 nil 时丢弃响应体
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(data, &payload) == nil {
			if payload.Error != "" {
				apiErr.Message = payload.Error
			}
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// wsURL /ws 的完整地址
func (c *Client) wsURL(boardID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws"
	q := url.Values{}
	q.Set("boardId", boardID)
	if tok := c.token(); tok != "" {
		q.Set("token", tok)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
