package bootstrap

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Env 环境变量配置结构
type Env struct {
	DatabaseURL    string   // PostgreSQL 或 MySQL 连接字符串
	ClerkSecretKey string   // Clerk API 密钥
	WebhookSecret  string   // Clerk Webhook 签名密钥
	Port           string   // 服务端口
	RedisURL       string   // 可选，多实例部署时用于转发字段变更
	AllowedOrigins []string // CORS / WebSocket 来源白名单
	PageSize       int      // 列表默认分页大小
}

// 默认允许的前端来源
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// LoadEnv 加载环境变量
// 开发环境从 .env 文件加载，生产环境从系统环境变量读取
func LoadEnv() *Env {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env 文件未找到，将使用系统环境变量")
	}

	env := &Env{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ClerkSecretKey: os.Getenv("CLERK_SECRET_KEY"),
		WebhookSecret:  os.Getenv("CLERK_WEBHOOK_SECRET"),
		Port:           os.Getenv("PORT"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		PageSize:       atoiDefault(os.Getenv("PAGE_SIZE"), 20),
	}

	if env.Port == "" {
		env.Port = "8080"
	}
	if len(env.AllowedOrigins) == 0 {
		env.AllowedOrigins = defaultOrigins
	}

	// 必需变量检查
	if env.DatabaseURL == "" {
		log.Fatal("❌ 缺少必需环境变量: DATABASE_URL")
	}

	log.Printf("✅ 环境变量加载完成, 端口: %s", env.Port)
	return env
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
