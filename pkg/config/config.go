package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置（留空 PostgresDSN 则使用内存实现）
	PostgresDSN    string
	MigrationsPath string

	// Redis（可选，留空则使用内存缓存）
	RedisURL string

	// JWT配置
	JWTSecret string

	// SMTP 配置（OTP / 邀请邮件；留空则仅记录日志）
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	// 视频服务商配置（会议房间 token 签发）
	VideoAppKey    string
	VideoAppSecret string

	// CORS配置
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件（不存在则静默忽略）
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}
	switch env {
	case "production":
		_ = godotenv.Load(".env.production", ".env")
	default:
		_ = godotenv.Load(".env.local", ".env")
	}

	config := &Config{
		// 默认值
		Environment:    getEnvWithDefault("ENVIRONMENT", "development"),
		Port:           getEnvWithDefault("PORT", "3000"),
		MigrationsPath: getEnvWithDefault("MIGRATIONS_PATH", "migrations"),
		JWTSecret:      getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		Debug:          getEnvBool("DEBUG", false),
	}

	// 数据库 / Redis
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	// SMTP配置
	config.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	config.SMTPPort = getEnvWithDefault("SMTP_PORT", "587")
	config.SMTPUser = os.Getenv("SMTP_USER")
	config.SMTPPass = os.Getenv("SMTP_PASS")
	config.MailFrom = getEnvWithDefault("MAIL_FROM", "no-reply@ebe.app")

	// 视频服务商配置
	config.VideoAppKey = strings.TrimSpace(os.Getenv("VIDEO_APP_KEY"))
	config.VideoAppSecret = strings.TrimSpace(os.Getenv("VIDEO_APP_SECRET"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	// 生产环境关闭调试
	if config.Environment == "production" {
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per process)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	// 验证端口
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	// 生产环境必须配置外部数据库
	if c.Environment == "production" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN must be set in production")
	}

	// 视频 token 签发需要成对的 key/secret
	if (c.VideoAppKey == "") != (c.VideoAppSecret == "") {
		return fmt.Errorf("VIDEO_APP_KEY and VIDEO_APP_SECRET must be set together")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
