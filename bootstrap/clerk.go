package bootstrap

import (
	"errors"
	"log"

	"github.com/clerk/clerk-sdk-go/v2"
)

// InitClerk 设置 Clerk 密钥，JWT 校验和 Webhook 都依赖它
func InitClerk(secret string) error {
	if secret == "" {
		return errors.New("CLERK_SECRET_KEY is not set")
	}
	clerk.SetKey(secret)
	log.Println("[Bootstrap] ✅ Clerk 初始化成功")
	return nil
}
