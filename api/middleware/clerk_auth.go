package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/gin-gonic/gin"
)

// Verifier 校验会话 token，返回用户 ID 和会话 ID
type Verifier func(ctx context.Context, token string) (userID, sessionID string, err error)

// ClerkVerifier 使用 Clerk SDK 校验（自动拉取公钥并检查签名和过期时间）
func ClerkVerifier(ctx context.Context, token string) (string, string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.SessionID, nil
}

// ClerkAuth REST 接口的 Clerk JWT 认证
func ClerkAuth() gin.HandlerFunc {
	return Auth(ClerkVerifier)
}

// Auth 从 Authorization: Bearer 头读取 token 并校验，用户信息写入上下文
func Auth(verify Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少 Authorization 头", "code": "UNAUTHORIZED"})
			return
		}

		userID, sessionID, err := verify(c.Request.Context(), token)
		if err != nil || userID == "" {
			details := "empty subject"
			if err != nil {
				details = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token 无效", "code": "UNAUTHORIZED", "details": details})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeySessionID, sessionID)
		c.Next()
	}
}

// BearerToken 解析 "Bearer xxx"，大小写不敏感
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
