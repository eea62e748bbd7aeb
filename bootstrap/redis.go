package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis 可选的 Redis 连接，url 为空返回 nil（单实例部署）
func NewRedis(url string) *redis.Client {
	if url == "" {
		log.Println("ℹ️ 未配置 REDIS_URL，字段变更只在本实例内广播")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("❌ REDIS_URL 格式错误: %v", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("❌ Redis 连接失败: %v", err)
	}

	log.Println("✅ Redis 连接成功")
	return client
}
