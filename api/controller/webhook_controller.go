package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"board-go-server/domain/entity"
	domainRepo "board-go-server/domain/repository"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"
)

// maxWebhookBody Clerk 事件体上限
const maxWebhookBody = 1 << 20

// UserCache 用户同步后需要失效的缓存
type UserCache interface {
	Forget(userID string)
}

// WebhookController 把 Clerk 用户事件同步到本地用户表
type WebhookController struct {
	userRepo domainRepo.UserRepository
	cache    UserCache
	verifier *svix.Webhook
	initErr  error
}

// NewWebhookController secret 为空时跳过签名校验（仅限开发环境）
func NewWebhookController(userRepo domainRepo.UserRepository, cache UserCache, webhookSecret string) *WebhookController {
	wc := &WebhookController{userRepo: userRepo, cache: cache}
	if webhookSecret != "" {
		wc.verifier, wc.initErr = svix.NewWebhook(webhookSecret)
	} else {
		log.Println("[Webhook] ⚠️ 未配置 CLERK_WEBHOOK_SECRET，跳过签名验证（仅限开发环境）")
	}
	return wc
}

// clerkEvent Clerk Webhook 事件
type clerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// clerkUser user.created / user.updated 的 data
type clerkUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	ImageURL              string `json:"image_url"`
	PublicMetadata        struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

// primaryEmail 优先取主邮箱，没有标记时取第一个
func (u clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// toEntity 初始角色来自 public_metadata.role；已有用户的角色不会被覆盖（见 Upsert）
func (u clerkUser) toEntity(now time.Time) *entity.User {
	role := entity.Role(u.PublicMetadata.Role)
	if !role.Valid() {
		role = entity.RoleStudent
	}
	return &entity.User{
		ID:        u.ID,
		Email:     u.primaryEmail(),
		Name:      strings.TrimSpace(u.FirstName + " " + u.LastName),
		AvatarURL: u.ImageURL,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HandleClerkWebhook POST /webhook/clerk
// 存储失败返回 500，让 Svix 重试
func (wc *WebhookController) HandleClerkWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无法读取请求体", Code: "INVALID_REQUEST"})
		return
	}

	if err := wc.verify(body, c.Request.Header); err != nil {
		log.Printf("[Webhook] ❌ 签名验证失败: %v", err)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "签名验证失败", Code: "UNAUTHORIZED"})
		return
	}

	var event clerkEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的 JSON 格式", Code: "INVALID_REQUEST"})
		return
	}
	log.Printf("[Webhook] 📥 收到事件: %s", event.Type)

	switch event.Type {
	case "user.created", "user.updated":
		err = wc.upsertUser(event.Data)
	case "user.deleted":
		err = wc.deleteUser(event.Data)
	default:
		log.Printf("[Webhook] ℹ️ 忽略事件: %s", event.Type)
	}
	if err != nil {
		log.Printf("[Webhook] ❌ 处理 %s 失败: %v", event.Type, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "同步失败", Code: "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (wc *WebhookController) verify(body []byte, header http.Header) error {
	if wc.initErr != nil {
		return wc.initErr
	}
	if wc.verifier == nil {
		return nil
	}
	return wc.verifier.Verify(body, header)
}

func (wc *WebhookController) upsertUser(data json.RawMessage) error {
	var u clerkUser
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	if u.ID == "" {
		return errors.New("user event without id")
	}

	user := u.toEntity(time.Now())
	if err := wc.userRepo.Upsert(user); err != nil {
		return err
	}
	wc.forget(user.ID)
	log.Printf("[Webhook] ✅ 用户同步成功: %s (%s)", user.ID, user.Email)
	return nil
}

// deleteUser 用户的看板保留，owner 仍指向原 ID，管理员可以接管
func (wc *WebhookController) deleteUser(data json.RawMessage) error {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("decode deleted user: %w", err)
	}
	if err := wc.userRepo.Delete(ref.ID); err != nil {
		return err
	}
	wc.forget(ref.ID)
	log.Printf("[Webhook] 🗑️ 用户已删除: %s", ref.ID)
	return nil
}

func (wc *WebhookController) forget(userID string) {
	if wc.cache != nil {
		wc.cache.Forget(userID)
	}
}
